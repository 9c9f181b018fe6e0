package arbiter

import (
	"math/rand"
	"testing"

	"github.com/ent0n29/socketrobot/internal/drive"
)

func ev(session string, kind drive.EventKind, code drive.Code) drive.InputEvent {
	return drive.InputEvent{SessionID: session, Kind: kind, Code: code}
}

func TestArbiterSingleSession(t *testing.T) {
	a := New()
	if !a.Current().IsZero() {
		t.Fatalf("initial vector = %+v, want zero", a.Current())
	}

	if changed := a.Apply(ev("s1", drive.KindKeyDown, drive.CodeForward)); !changed {
		t.Fatalf("forward key-down should change the vector")
	}
	if got := a.Current(); got != (drive.DriveVector{Throttle: 1}) {
		t.Fatalf("vector = %+v, want throttle 1", got)
	}

	a.Apply(ev("s1", drive.KindKeyDown, drive.CodeRight))
	if got := a.Current(); got != (drive.DriveVector{Throttle: 1, Turn: 1}) {
		t.Fatalf("vector = %+v, want throttle 1 turn 1", got)
	}

	a.Apply(ev("s1", drive.KindKeyUp, drive.CodeForward))
	if got := a.Current(); got != (drive.DriveVector{Turn: 1}) {
		t.Fatalf("vector = %+v, want turn 1", got)
	}

	a.Apply(ev("s1", drive.KindButtonPress, drive.CodeStop))
	if !a.Current().IsZero() {
		t.Fatalf("explicit stop should clear the vector, got %+v", a.Current())
	}
	if a.HeldBy("s1") != 0 {
		t.Fatalf("explicit stop should clear held set, got %v", a.HeldBy("s1").Directions())
	}
}

func TestArbiterSameSessionOppositeKeysCancel(t *testing.T) {
	a := New()
	a.Apply(ev("s1", drive.KindKeyDown, drive.CodeLeft))
	a.Apply(ev("s1", drive.KindKeyDown, drive.CodeRight))
	if got := a.Current(); got.Turn != 0 {
		t.Fatalf("turn = %v, want 0", got.Turn)
	}
}

func TestArbiterReleaseWithoutPressIsNoop(t *testing.T) {
	a := New()
	if changed := a.Apply(ev("s1", drive.KindKeyUp, drive.CodeForward)); changed {
		t.Fatalf("release without press should not change the vector")
	}
	if a.HeldBy("s1") != 0 {
		t.Fatalf("held set = %v, want empty", a.HeldBy("s1").Directions())
	}
	if changed := a.Apply(ev("s1", drive.KindHeartbeat, drive.CodeNone)); changed {
		t.Fatalf("heartbeat should not change the vector")
	}
}

func TestArbiterOpposingOperatorsCancelForAllInterleavings(t *testing.T) {
	events := []drive.InputEvent{
		ev("a", drive.KindKeyDown, drive.CodeForward),
		ev("b", drive.KindKeyDown, drive.CodeBackward),
		ev("a", drive.KindKeyDown, drive.CodeLeft),
		ev("b", drive.KindKeyDown, drive.CodeLeft),
	}
	// Every permutation of four events.
	var permute func(int)
	perm := append([]drive.InputEvent(nil), events...)
	permute = func(k int) {
		if k == len(perm) {
			a := New()
			for _, e := range perm {
				a.Apply(e)
			}
			got := a.Current()
			if got != (drive.DriveVector{Throttle: 0, Turn: -1}) {
				t.Fatalf("order %+v folded to %+v, want throttle 0 turn -1", perm, got)
			}
			return
		}
		for i := k; i < len(perm); i++ {
			perm[k], perm[i] = perm[i], perm[k]
			permute(k + 1)
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	permute(0)
}

func TestArbiterMajorityVote(t *testing.T) {
	a := New()
	a.Apply(ev("a", drive.KindKeyDown, drive.CodeForward))
	a.Apply(ev("b", drive.KindKeyDown, drive.CodeForward))
	a.Apply(ev("c", drive.KindKeyDown, drive.CodeBackward))
	if got := a.Current(); got.Throttle != 1 {
		t.Fatalf("throttle = %v, want 1 (two forward vs one back)", got.Throttle)
	}
}

func TestArbiterRemoveSessionClearsContribution(t *testing.T) {
	a := New()
	a.Apply(ev("a", drive.KindKeyDown, drive.CodeForward))
	a.Apply(ev("b", drive.KindKeyDown, drive.CodeBackward))
	if got := a.Current(); got.Throttle != 0 {
		t.Fatalf("throttle = %v, want 0", got.Throttle)
	}

	if changed := a.RemoveSession("b"); !changed {
		t.Fatalf("removing b should change the vector")
	}
	if got := a.Current(); got.Throttle != 1 {
		t.Fatalf("throttle = %v, want 1 after b leaves", got.Throttle)
	}
	if a.HeldBy("b") != 0 {
		t.Fatalf("removed session still holds %v", a.HeldBy("b").Directions())
	}
	if a.RemoveSession("b") {
		t.Fatalf("second removal should be a no-op")
	}
}

func TestArbiterReleaseAll(t *testing.T) {
	a := New()
	a.Apply(ev("a", drive.KindKeyDown, drive.CodeForward))
	a.Apply(ev("b", drive.KindKeyDown, drive.CodeBackward))
	a.Apply(ev("b", drive.KindKeyDown, drive.CodeLeft))
	a.ReleaseAll()
	if !a.Current().IsZero() {
		t.Fatalf("vector = %+v, want zero after release all", a.Current())
	}
	if a.Sessions() != 2 {
		t.Fatalf("Sessions() = %d, want 2", a.Sessions())
	}
}

func TestArbiterHeldSetTracksUnmatchedPresses(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	codes := []drive.Code{drive.CodeForward, drive.CodeBackward, drive.CodeLeft, drive.CodeRight}
	a := New()
	down := map[drive.Code]bool{}
	for i := 0; i < 500; i++ {
		code := codes[rng.Intn(len(codes))]
		kind := drive.KindKeyDown
		if rng.Intn(2) == 0 {
			kind = drive.KindKeyUp
		}
		a.Apply(ev("s", kind, code))
		down[code] = kind == drive.KindKeyDown

		held := a.HeldBy("s")
		for _, c := range codes {
			d, _ := c.Direction()
			if held.Has(d) != down[c] {
				t.Fatalf("step %d: held(%s) = %v, want %v", i, c, held.Has(d), down[c])
			}
		}
	}
	a.RemoveSession("s")
	if a.HeldBy("s") != 0 {
		t.Fatalf("held set not empty after removal")
	}
}
