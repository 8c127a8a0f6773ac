package crawler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	pending := catalog.Item{ID: 730, Name: "listing name", Status: catalog.StatusPending}
	raw := json.RawMessage(`{"type":"Game","name":"Counter-Strike 2"}`)

	tests := []struct {
		name   string
		res    FetchResult
		policy TransientPolicy
		want   Decision
	}{
		{
			name: "target type saves record",
			res:  Success(Detail{Name: "Counter-Strike 2", Type: "Game", Raw: raw}),
			want: Decision{
				Action: ActionSaveGame,
				Status: catalog.StatusGame,
				Record: catalog.Record{ID: 730, Name: "Counter-Strike 2", Type: "Game", Detail: raw},
			},
		},
		{
			name: "other type",
			res:  Success(Detail{Name: "Soundtrack", Type: "music"}),
			want: Decision{Action: ActionMark, Status: catalog.StatusNotGame},
		},
		{
			name: "not found",
			res:  NotFound("success=false"),
			want: Decision{Action: ActionMark, Status: catalog.StatusNotGame},
		},
		{
			name:   "transient keeps pending",
			res:    TransientError("timeout"),
			policy: TransientPending,
			want:   Decision{Action: ActionNone, Status: catalog.StatusPending},
		},
		{
			name:   "transient marks failed",
			res:    TransientError("timeout"),
			policy: TransientFailed,
			want:   Decision{Action: ActionMark, Status: catalog.StatusFailed},
		},
		{
			name:   "rate limited never writes",
			res:    RateLimited(),
			policy: TransientFailed,
			want:   Decision{Action: ActionNone, Status: catalog.StatusPending},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Classify(pending, tc.res, "game", tc.policy))
		})
	}
}

func TestClassifyFallsBackToListingName(t *testing.T) {
	t.Parallel()

	item := catalog.Item{ID: 10, Name: "Counter-Strike"}
	d := Classify(item, Success(Detail{Type: "game"}), "game", TransientPending)
	require.Equal(t, "Counter-Strike", d.Record.Name)
}

func TestExcluded(t *testing.T) {
	t.Parallel()

	require.Equal(t, Decision{Action: ActionMark, Status: catalog.StatusNotGame, Filtered: true}, Excluded())
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "success", OutcomeSuccess.String())
	require.Equal(t, "not_found", OutcomeNotFound.String())
	require.Equal(t, "transient_error", OutcomeTransient.String())
	require.Equal(t, "rate_limited", OutcomeRateLimited.String())
	require.Equal(t, "outcome(9)", Outcome(9).String())
}

func TestParseTransientPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseTransientPolicy(" Failed ")
	require.NoError(t, err)
	require.Equal(t, TransientFailed, p)
	p, err = ParseTransientPolicy("")
	require.NoError(t, err)
	require.Equal(t, TransientPending, p)
	_, err = ParseTransientPolicy("drop")
	require.Error(t, err)
}
