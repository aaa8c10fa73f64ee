package security

import (
	"reflect"
	"testing"

	"github.com/forest6511/acctvault/pkg/vault"
)

func TestCalculateScoreEmpty(t *testing.T) {
	score, err := NewCalculator().CalculateScore(nil)
	if err != nil {
		t.Fatal(err)
	}
	if score.Overall != 100 || len(score.Issues) != 0 {
		t.Errorf("CalculateScore(nil) = %+v", score)
	}
}

// TestCalculateScore tests each component and the issues it reports
func TestCalculateScore(t *testing.T) {
	accounts := []*vault.Account{
		{ID: 1, Password: "short", Secret: "JBSWY3DPEHPK3PXP", Recovery: "r@example.com"},
		{ID: 2, Password: "correct-horse-battery-staple", Recovery: "r@example.com"},
		{ID: 3, Password: " short ", Secret: "JBSWY3DPEHPK3PXP", Recovery: "r@example.com"},
		{ID: 4, Password: "twenty-characters-ok", Recovery: "r@example.com"},
	}

	score, err := NewCalculator().CalculateScore(accounts)
	if err != nil {
		t.Fatal(err)
	}

	want := ScoreComponents{
		StrengthScore:   (0 + 25 + 0 + 25) / 4,
		UniquenessScore: 3 * 25 / 4,
		TwoFactorScore:  2 * 25 / 4,
		RecoveryScore:   25,
	}
	if score.Components != want {
		t.Errorf("Components = %+v, want %+v", score.Components, want)
	}
	if score.Overall != want.StrengthScore+want.UniquenessScore+want.TwoFactorScore+want.RecoveryScore {
		t.Errorf("Overall = %d", score.Overall)
	}

	byType := make(map[IssueType][]int64)
	for _, is := range score.Issues {
		byType[is.Type] = is.AccountIDs
	}
	if !reflect.DeepEqual(byType[IssueWeakPassword], []int64{1, 3}) {
		t.Errorf("weak = %v", byType[IssueWeakPassword])
	}
	if !reflect.DeepEqual(byType[IssueDuplicatePassword], []int64{1, 3}) {
		t.Errorf("duplicate = %v", byType[IssueDuplicatePassword])
	}
	if !reflect.DeepEqual(byType[IssueMissingTwoFactor], []int64{2, 4}) {
		t.Errorf("no_2fa = %v", byType[IssueMissingTwoFactor])
	}
	if _, ok := byType[IssueMissingRecovery]; ok {
		t.Error("unexpected no_recovery issue")
	}
	if len(score.Suggestions) != 3 {
		t.Errorf("Suggestions = %v", score.Suggestions)
	}
}

func TestFindDuplicates(t *testing.T) {
	accounts := []*vault.Account{
		{ID: 5, Password: "a"},
		{ID: 1, Password: "b"},
		{ID: 2, Password: "a"},
		{ID: 3, Password: "b"},
		{ID: 4, Password: "b"},
		{ID: 6, Password: ""},
		{ID: 7, Password: ""},
		{ID: 8, Password: "c"},
	}

	groups, err := NewCalculator().FindDuplicates(accounts)
	if err != nil {
		t.Fatal(err)
	}
	want := []DuplicateGroup{
		{AccountIDs: []int64{1, 3, 4}, Count: 3},
		{AccountIDs: []int64{2, 5}, Count: 2},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("FindDuplicates() = %+v, want %+v", groups, want)
	}
}

func TestFindDuplicatesNormalizesUnicode(t *testing.T) {
	// "é" precomposed and decomposed
	accounts := []*vault.Account{
		{ID: 1, Password: "caf\u00e9"},
		{ID: 2, Password: "cafe\u0301"},
	}
	groups, err := NewCalculator().FindDuplicates(accounts)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0].Count != 2 {
		t.Errorf("FindDuplicates() = %+v, want one group of 2", groups)
	}
}
