package mempool

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestChoose(t *testing.T) {
	s := NonceAndGasPrice{}
	old := makeTx(1, 0, 10)
	tests := []struct {
		name string
		tx   *Transaction
		want Choice
	}{
		{"cheaper", makeTxValue(1, 0, 9, 1), RejectNew},
		{"same price, verified later", makeTxValue(1, 0, 10, 1), RejectNew},
		{"pricier", makeTxValue(1, 0, 11, 1), ReplaceOld},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Choose(old, tt.tx); got != tt.want {
				t.Errorf("Choose = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldReplace(t *testing.T) {
	s := NonceAndGasPrice{}
	tests := []struct {
		name    string
		old, tx *Transaction
		want    bool
	}{
		{"other sender, higher price", makeTx(1, 0, 10), makeTx(2, 0, 11), true},
		{"other sender, lower price", makeTx(1, 0, 10), makeTx(2, 0, 9), false},
		{"same sender, lower nonce", makeTx(1, 5, 100), makeTx(1, 2, 1), true},
		{"same sender, higher nonce", makeTx(1, 2, 1), makeTx(1, 5, 100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.ShouldReplace(tt.old, tt.tx); got != tt.want {
				t.Errorf("ShouldReplace = %v, want %v", got, tt.want)
			}
		})
	}

	// Equal price across senders: only the earlier verified transaction wins
	first, second := makeTx(1, 0, 10), makeTx(2, 0, 10)
	if s.ShouldReplace(first, second) {
		t.Error("later insertion displaced an equal incumbent")
	}
	if !s.ShouldReplace(second, first) {
		t.Error("earlier insertion did not displace an equal incumbent")
	}
}

func scoresOf(s Scoring, txs []*Transaction) []uint256.Int {
	scores := make([]uint256.Int, len(txs))
	for i := range txs {
		s.UpdateScores(txs, scores, Change{Kind: InsertedAt, Index: i})
	}
	return scores
}

func TestUpdateScores(t *testing.T) {
	txs := []*Transaction{makeTx(1, 0, 40), makeTx(1, 1, 80), makeTx(1, 2, 16)}

	tests := []struct {
		name    string
		scoring Scoring
		want    []uint64
	}{
		{"gas price", NonceAndGasPrice{}, []uint64{40, 80, 16}},
		{"cumulative", CumulativeGasPrice{}, []uint64{40, 40, 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := scoresOf(tt.scoring, txs)
			for i, want := range tt.want {
				if got := scores[i].Uint64(); got != want {
					t.Errorf("score[%d] = %d, want %d", i, got, want)
				}
			}

			tt.scoring.UpdateScores(txs, scores, Change{Kind: Event, Event: PenalizeEvent{}, Penalty: 1})
			for i, want := range tt.want {
				if got := scores[i].Uint64(); got != want>>penaltyShift {
					t.Errorf("penalized score[%d] = %d, want %d", i, got, want>>penaltyShift)
				}
			}

			tt.scoring.UpdateScores(txs, scores, Change{Kind: Event, Event: "reset"})
			for i, want := range tt.want {
				if got := scores[i].Uint64(); got != want {
					t.Errorf("reset score[%d] = %d, want %d", i, got, want)
				}
			}
		})
	}
}

func TestPenalizeDemotesSender(t *testing.T) {
	p, _ := newTestPool(DefaultOptions, nil)
	rich, poor := makeTx(1, 0, 80), makeTx(2, 0, 20)
	mustImport(t, p, rich, poor)

	if p.Worst() != poor {
		t.Fatal("Worst should be the cheaper transaction")
	}
	p.UpdateScores(sender(1), PenalizeEvent{})
	if p.Worst() != rich {
		t.Error("penalized sender should rank last")
	}
	got := p.Pending(NewNonceReady(0)).Collect(0)
	if len(got) != 2 || got[0] != poor {
		t.Errorf("pending = %v, want the unpenalized sender first", hashesOf(got))
	}
	// Unknown senders are ignored
	p.UpdateScores(sender(9), PenalizeEvent{})
	checkIndices(t, p)
}

func TestPenaltyOutlivesChanges(t *testing.T) {
	tests := []struct {
		name    string
		scoring Scoring
		want    []uint64
	}{
		{"gas price", NonceAndGasPrice{}, []uint64{80 >> penaltyShift, 100 >> penaltyShift}},
		{"cumulative", CumulativeGasPrice{}, []uint64{80 >> penaltyShift, 80 >> penaltyShift}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPool(DefaultOptions, tt.scoring)
			mustImport(t, p, makeTx(1, 0, 80), makeTx(2, 0, 20))
			p.UpdateScores(sender(1), PenalizeEvent{})

			// Insertion and removal after the penalty keep it in force
			late := makeTx(1, 1, 100)
			mustImport(t, p, late, makeTx(1, 2, 100))
			p.Remove(makeTx(1, 2, 100).Hash())

			q := p.senders[sender(1)]
			if len(q.scores) != len(tt.want) {
				t.Fatalf("sender has %d slots, want %d", len(q.scores), len(tt.want))
			}
			for i, want := range tt.want {
				if got := q.scores[i].Uint64(); got != want {
					t.Errorf("score[%d] = %d, want %d", i, got, want)
				}
			}
			got := p.Pending(NewNonceReady(0)).Collect(0)
			if len(got) != 3 || got[0].Sender() != sender(2) {
				t.Errorf("pending = %v, want the unpenalized sender first", hashesOf(got))
			}
			checkIndices(t, p)
		})
	}
}

func TestPenaltyClearedWhenSenderLeaves(t *testing.T) {
	p, _ := newTestPool(DefaultOptions, nil)
	a := makeTx(1, 0, 80)
	mustImport(t, p, a)
	p.UpdateScores(sender(1), PenalizeEvent{})
	p.Remove(a.Hash())

	mustImport(t, p, makeTx(1, 0, 81))
	if got := p.senders[sender(1)].scores[0].Uint64(); got != 81 {
		t.Errorf("score = %d, want 81", got)
	}
}

func TestCumulativeWorst(t *testing.T) {
	p, _ := newTestPool(DefaultOptions, CumulativeGasPrice{})
	low, high := makeTx(1, 0, 5), makeTx(1, 1, 50)
	mustImport(t, p, low, makeTx(2, 0, 20), high)

	// Both of sender 1 score 5; the later nonce ranks below
	if p.Worst() != high {
		t.Errorf("Worst = nonce %d, want the capped follower", p.Worst().Nonce())
	}
	checkIndices(t, p)
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{InsertNew.String(), "insert"},
		{ReplaceOld.String(), "replace"},
		{RejectNew.String(), "reject"},
		{Ready.String(), "ready"},
		{Future.String(), "future"},
		{Stalled.String(), "stalled"},
		{OriginLocal.String(), "local"},
		{EventDropped.String(), "dropped"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}
