package analyses

import "testing"

func TestProjectPhaseValues(t *testing.T) {
	tests := []struct {
		name string
		p    Progress
		want int
	}{
		{name: "sampling start", p: Progress{Phase: PhaseSampling}, want: 0},
		{
			name: "sampling by window",
			p:    Progress{Phase: PhaseSampling, SamplingProgress: &SamplingProgress{WindowIndex: 3, TotalWindows: 6, TargetCount: 100}, SessionsFound: 10},
			want: 10,
		},
		{
			name: "sampling by sessions",
			p:    Progress{Phase: PhaseSampling, SamplingProgress: &SamplingProgress{WindowIndex: 1, TotalWindows: 6, TargetCount: 10}, SessionsFound: 8},
			want: 16,
		},
		{name: "discovery half", p: Progress{Phase: PhaseDiscovery, DiscoveryStats: &DiscoveryStats{DiscoveryRate: 0.5}}, want: 28},
		{name: "discovery done", p: Progress{Phase: PhaseDiscovery, DiscoveryStats: &DiscoveryStats{DiscoveryRate: 1}}, want: 35},
		{
			name: "parallel by rounds",
			p:    Progress{Phase: PhaseParallel, RoundsCompleted: 2, TotalRounds: 4, SessionsProcessed: 10, TotalSessions: 100},
			want: 60,
		},
		{
			name: "parallel by sessions",
			p:    Progress{Phase: PhaseParallel, RoundsCompleted: 1, TotalRounds: 4, SessionsProcessed: 60, TotalSessions: 100},
			want: 65,
		},
		{
			name: "inter-round conflicts get a bonus",
			p:    Progress{Phase: PhaseConflicts, RoundsCompleted: 2, TotalRounds: 4, TotalSessions: 100},
			want: 62,
		},
		{
			name: "final conflicts without conflicts",
			p:    Progress{Phase: PhaseConflicts, RoundsCompleted: 4, TotalRounds: 4},
			want: 95,
		},
		{
			name: "final conflicts partially resolved",
			p:    Progress{Phase: PhaseConflicts, RoundsCompleted: 4, TotalRounds: 4, ConflictStats: &ConflictStats{ConflictsFound: 4, ConflictsResolved: 2}},
			want: 90,
		},
		{name: "summary", p: Progress{Phase: PhaseSummary}, want: 98},
		{name: "complete", p: Progress{Phase: PhaseComplete}, want: 100},
		{name: "error without progress", p: Progress{Phase: PhaseError}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Project(tt.p, 0); got != tt.want {
				t.Fatalf("Project = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProjectNeverBelowFloor(t *testing.T) {
	p := Progress{Phase: PhaseParallel, RoundsCompleted: 0, TotalRounds: 5}
	if got := Project(p, 42); got != 42 {
		t.Fatalf("expected floor 42, got %d", got)
	}
	if got := Project(Progress{Phase: PhaseError}, 57); got != 57 {
		t.Fatalf("error should keep last value, got %d", got)
	}
	if got := Project(Progress{Phase: PhaseSummary}, 100); got != 99 {
		t.Fatalf("running jobs cap at 99, got %d", got)
	}
}

func TestProjectIsIdempotent(t *testing.T) {
	p := Progress{Phase: PhaseParallel, RoundsCompleted: 3, TotalRounds: 7, SessionsProcessed: 31, TotalSessions: 70}
	first := Project(p, 0)
	for i := 0; i < 5; i++ {
		if got := Project(p, 0); got != first {
			t.Fatalf("call %d returned %d, want %d", i, got, first)
		}
	}
}
