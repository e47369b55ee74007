package market

// ledgerABI is the interface of the deployed prediction-market contract.
const ledgerABI = `[
  {"type":"function","name":"createPrediction","stateMutability":"nonpayable",
   "inputs":[{"name":"title","type":"string"},{"name":"description","type":"string"},
             {"name":"targetDate","type":"uint256"},{"name":"targetValue","type":"uint256"},
             {"name":"category","type":"uint8"},{"name":"network","type":"string"},
             {"name":"emoji","type":"string"},{"name":"autoResolvable","type":"bool"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"vote","stateMutability":"payable",
   "inputs":[{"name":"predictionId","type":"uint256"},{"name":"isYes","type":"bool"}],"outputs":[]},
  {"type":"function","name":"resolvePrediction","stateMutability":"nonpayable",
   "inputs":[{"name":"predictionId","type":"uint256"},{"name":"outcome","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"cancelPrediction","stateMutability":"nonpayable",
   "inputs":[{"name":"predictionId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"claimReward","stateMutability":"nonpayable",
   "inputs":[{"name":"predictionId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"claimRefund","stateMutability":"nonpayable",
   "inputs":[{"name":"predictionId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"createChallenge","stateMutability":"nonpayable",
   "inputs":[{"name":"user","type":"address"},{"name":"predictionId","type":"uint256"},
             {"name":"exerciseType","type":"string"},{"name":"targetAmount","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"completeChallenge","stateMutability":"nonpayable",
   "inputs":[{"name":"challengeId","type":"uint256"}],"outputs":[]},

  {"type":"function","name":"getPrediction","stateMutability":"view",
   "inputs":[{"name":"predictionId","type":"uint256"}],
   "outputs":[{"name":"id","type":"uint256"},{"name":"creator","type":"address"},
              {"name":"title","type":"string"},{"name":"description","type":"string"},
              {"name":"emoji","type":"string"},{"name":"network","type":"string"},
              {"name":"targetDate","type":"uint256"},{"name":"targetValue","type":"uint256"},
              {"name":"category","type":"uint8"},{"name":"totalStaked","type":"uint256"},
              {"name":"yesVotes","type":"uint256"},{"name":"noVotes","type":"uint256"},
              {"name":"status","type":"uint8"},{"name":"outcome","type":"uint8"},
              {"name":"autoResolvable","type":"bool"},{"name":"createdAt","type":"uint256"},
              {"name":"resolvedAt","type":"uint256"},{"name":"charityAmount","type":"uint256"},
              {"name":"maintenanceAmount","type":"uint256"},{"name":"distributable","type":"uint256"}]},
  {"type":"function","name":"getUserVote","stateMutability":"view",
   "inputs":[{"name":"predictionId","type":"uint256"},{"name":"user","type":"address"}],
   "outputs":[{"name":"isYes","type":"bool"},{"name":"amount","type":"uint256"},{"name":"claimed","type":"bool"}]},
  {"type":"function","name":"getTotalFeePercentage","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getFeeInfo","stateMutability":"view","inputs":[],
   "outputs":[{"name":"charityFeePercentage","type":"uint256"},{"name":"maintenanceFeePercentage","type":"uint256"},
              {"name":"charityAddress","type":"address"},{"name":"maintenanceAddress","type":"address"}]},
  {"type":"function","name":"predictionCount","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"canCreateSweatEquity","stateMutability":"view",
   "inputs":[{"name":"predictionId","type":"uint256"},{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getChallenge","stateMutability":"view",
   "inputs":[{"name":"challengeId","type":"uint256"}],
   "outputs":[{"name":"user","type":"address"},{"name":"predictionId","type":"uint256"},
              {"name":"exerciseType","type":"string"},{"name":"targetAmount","type":"uint256"},
              {"name":"deadline","type":"uint256"},{"name":"completed","type":"bool"},
              {"name":"stakeAmount","type":"uint256"},{"name":"recoveryAmount","type":"uint256"},
              {"name":"createdAt","type":"uint256"},{"name":"completedAt","type":"uint256"}]},

  {"type":"event","name":"PredictionCreated","anonymous":false,
   "inputs":[{"name":"predictionId","type":"uint256","indexed":true},{"name":"creator","type":"address","indexed":true},
             {"name":"title","type":"string","indexed":false},{"name":"targetDate","type":"uint256","indexed":false},
             {"name":"category","type":"uint8","indexed":false},{"name":"network","type":"string","indexed":false}]},
  {"type":"event","name":"VoteCast","anonymous":false,
   "inputs":[{"name":"predictionId","type":"uint256","indexed":true},{"name":"voter","type":"address","indexed":true},
             {"name":"isYes","type":"bool","indexed":false},{"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"PredictionResolved","anonymous":false,
   "inputs":[{"name":"predictionId","type":"uint256","indexed":true},{"name":"outcome","type":"uint8","indexed":false}]},
  {"type":"event","name":"PredictionCancelled","anonymous":false,
   "inputs":[{"name":"predictionId","type":"uint256","indexed":true}]},
  {"type":"event","name":"RewardClaimed","anonymous":false,
   "inputs":[{"name":"predictionId","type":"uint256","indexed":true},{"name":"voter","type":"address","indexed":true},
             {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"RefundClaimed","anonymous":false,
   "inputs":[{"name":"predictionId","type":"uint256","indexed":true},{"name":"voter","type":"address","indexed":true},
             {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"ChallengeCreated","anonymous":false,
   "inputs":[{"name":"challengeId","type":"uint256","indexed":true},{"name":"user","type":"address","indexed":true},
             {"name":"predictionId","type":"uint256","indexed":false},{"name":"recoveryAmount","type":"uint256","indexed":false}]},
  {"type":"event","name":"ChallengeCompleted","anonymous":false,
   "inputs":[{"name":"challengeId","type":"uint256","indexed":true},{"name":"user","type":"address","indexed":true},
             {"name":"predictionId","type":"uint256","indexed":false},{"name":"amount","type":"uint256","indexed":false}]}
]`
