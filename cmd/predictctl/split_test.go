package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func runSplit(t *testing.T, args ...string) (splitOutput, error) {
	t.Helper()
	var out bytes.Buffer
	splitCmd.SetOut(&out)
	splitCmd.SetErr(&out)
	splitCmd.SetArgs(args)
	if err := splitCmd.Execute(); err != nil {
		return splitOutput{}, err
	}
	var got splitOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	return got, nil
}

func TestSplitCommand(t *testing.T) {
	got, err := runSplit(t, "--total", "1000", "--charity", "15", "--maintenance", "5",
		"--stake", "100", "--winning-total", "400")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := splitOutput{
		TotalStaked:       "1000",
		CharityAmount:     "150",
		MaintenanceAmount: "50",
		Distributable:     "800",
		Payout:            "200",
	}
	if got != want {
		t.Errorf("split = %+v, want %+v", got, want)
	}
}

func TestSplitCommandRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad total", []string{"--total", "ten", "--charity", "15", "--maintenance", "5", "--stake", "", "--winning-total", ""}, "--total"},
		{"fees too high", []string{"--total", "10", "--charity", "60", "--maintenance", "40", "--stake", "", "--winning-total", ""}, "fee"},
		{"stake over winners", []string{"--total", "10", "--charity", "15", "--maintenance", "5", "--stake", "9", "--winning-total", "5"}, "stake"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runSplit(t, tc.args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}
