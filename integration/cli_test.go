//go:build integration

package integration

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestCLI_StatusWithoutBranch tests status on a fresh database
func TestCLI_StatusWithoutBranch(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t))

	output := simctl(t, binary, configPath, "status")

	if !strings.Contains(output, "Current date: 2025-01-01") {
		t.Errorf("Expected start date in output, got: %s", output)
	}
	if !strings.Contains(output, "not persisted") {
		t.Errorf("Expected missing branch notice, got: %s", output)
	}
}

// TestCLI_AdvanceFiresDueEvents tests that advancing persists the clock and
// fires events scheduled on the way
func TestCLI_AdvanceFiresDueEvents(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t))
	createActiveBranch(t, binary, configPath, "Main")

	out := simctl(t, binary, configPath, "event", "schedule", "Reagent Delay", "--date", "2025-01-03")
	m := scheduledRe.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no event ID in output: %s", out)
	}
	eventID := m[1]

	output := simctl(t, binary, configPath, "advance", "3")
	if !strings.Contains(output, "2025-01-01 -> 2025-01-04") {
		t.Errorf("Expected clock movement in output, got: %s", output)
	}
	if !strings.Contains(output, "fired "+eventID) {
		t.Errorf("Expected event %s to fire, got: %s", eventID, output)
	}

	output = simctl(t, binary, configPath, "status")
	if !strings.Contains(output, "Current date: 2025-01-04") {
		t.Errorf("Clock was not persisted, got: %s", output)
	}

	output = simctl(t, binary, configPath, "event", "list", "--executed")
	if !strings.Contains(output, eventID) || !strings.Contains(output, "2025-01-04") {
		t.Errorf("Expected executed event in list, got: %s", output)
	}
}

// TestCLI_AdvanceNegativeRejected tests input validation on advance
func TestCLI_AdvanceNegativeRejected(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t))

	if out, err := run(binary, configPath, "advance", "-2"); err == nil {
		t.Errorf("Expected negative advance to fail, got: %s", out)
	}
}

// TestCLI_BranchList tests that branches keep independent cursors
func TestCLI_BranchList(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t))
	createActiveBranch(t, binary, configPath, "Main")
	simctl(t, binary, configPath, "branch", "create", "Summer", "--from", "2025-06-01")
	simctl(t, binary, configPath, "advance", "10")

	output := simctl(t, binary, configPath, "branch", "list")
	for _, want := range []string{"NAME", "Main", "Summer", "2025-01-11", "2025-06-01"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output, got: %s", want, output)
		}
	}
}

// TestCLI_PacketAndRollback tests packet generation and purge on rollback
func TestCLI_PacketAndRollback(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t))
	createActiveBranch(t, binary, configPath, "Main")
	simctl(t, binary, configPath, "event", "schedule", "RFP Email - Model Replacement", "--date", "2025-01-05")
	simctl(t, binary, configPath, "jump", "2025-01-05")
	simctl(t, binary, configPath, "jump", "2025-01-10")

	out := simctl(t, binary, configPath, "packet", "2025-01-05")
	var packet struct {
		Date          string `json:"date"`
		CompanyStatus struct {
			RiskFlags []string `json:"risk_flags"`
		} `json:"company_status"`
		Emails []struct {
			Subject string `json:"subject"`
		} `json:"emails"`
	}
	if err := json.Unmarshal([]byte(out), &packet); err != nil {
		t.Fatalf("packet output is not JSON: %v\n%s", err, out)
	}
	if packet.Date != "2025-01-05" {
		t.Errorf("packet date = %s, want 2025-01-05", packet.Date)
	}
	if len(packet.CompanyStatus.RiskFlags) == 0 {
		t.Errorf("Expected risk flags after a bait event, got: %s", out)
	}
	if len(packet.Emails) != 1 {
		t.Errorf("Expected the RFP mail in the packet, got: %s", out)
	}

	if out, err := run(binary, configPath, "packet", "2025-02-01"); err == nil {
		t.Errorf("Expected future packet to fail, got: %s", out)
	}

	output := simctl(t, binary, configPath, "rollback", "2025-01-02")
	if !strings.Contains(output, "purge policy, 1 packet(s) purged") {
		t.Errorf("Expected purge summary, got: %s", output)
	}
}

// TestCLI_Templates tests listing the builtin catalog
func TestCLI_Templates(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t))

	output := simctl(t, binary, configPath, "templates", "--type", "bait")
	if !strings.Contains(output, "RFP Email - Model Replacement") {
		t.Errorf("Expected bait template in output, got: %s", output)
	}
	if strings.Contains(output, "Reagent Delay") {
		t.Errorf("small_problem template leaked into bait filter: %s", output)
	}
}
