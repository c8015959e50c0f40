package feed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/overcast-online/lingograph/pkg/types"
)

func drain(t *testing.T, ch <-chan types.Utterance) []types.Utterance {
	t.Helper()
	var out []types.Utterance
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatalf("timed out draining the source after %d utterances", len(out))
		}
	}
}

func TestLines(t *testing.T) {
	t.Parallel()

	t.Run("assigns increasing sequences and skips blanks", func(t *testing.T) {
		t.Parallel()

		stamp := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
		input := "bonjour tout le monde\n\n   \nça marche\nmerci\n"
		src := Lines(strings.NewReader(input), WithLineClock(func() time.Time { return stamp }))

		ch, err := src.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := drain(t, ch)

		want := []string{"bonjour tout le monde", "ça marche", "merci"}
		if len(got) != len(want) {
			t.Fatalf("expected %d utterances, got %d", len(want), len(got))
		}
		for i, u := range got {
			if u.Sequence != uint64(i+1) {
				t.Errorf("utterance %d: expected sequence %d, got %d", i, i+1, u.Sequence)
			}
			if u.Text != want[i] {
				t.Errorf("utterance %d: expected text %q, got %q", i, want[i], u.Text)
			}
			if !u.CapturedAt.Equal(stamp) {
				t.Errorf("utterance %d: expected injected timestamp, got %v", i, u.CapturedAt)
			}
		}
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		t.Parallel()

		src := Lines(strings.NewReader("  une phrase  \n"))
		ch, err := src.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := drain(t, ch)
		if len(got) != 1 || got[0].Text != "une phrase" {
			t.Fatalf("expected trimmed text, got %v", got)
		}
	})

	t.Run("cancellation stops the stream", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// A blocked reader: the goroutine must exit via ctx once the channel
		// buffer is full, not leak forever. With a cancelled context and a
		// small input it simply ends the stream.
		src := Lines(strings.NewReader(strings.Repeat("x\n", 100)))
		ch, err := src.Run(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		drain(t, ch)
	})
}

func TestScript(t *testing.T) {
	t.Parallel()

	t.Run("replays entries in order", func(t *testing.T) {
		t.Parallel()

		src := Script([]string{"un", "", "deux", "trois"}, 0)
		ch, err := src.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := drain(t, ch)

		want := []string{"un", "deux", "trois"}
		if len(got) != len(want) {
			t.Fatalf("expected %d utterances, got %d", len(want), len(got))
		}
		for i, u := range got {
			if u.Text != want[i] || u.Sequence != uint64(i+1) {
				t.Errorf("utterance %d: got sequence %d text %q", i, u.Sequence, u.Text)
			}
		}
	})

	t.Run("cancellation interrupts the pacing wait", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		src := Script([]string{"un", "deux"}, time.Hour)
		ch, err := src.Run(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		first := <-ch
		if first.Text != "un" {
			t.Fatalf("expected the first entry immediately, got %q", first.Text)
		}
		cancel()
		if got := drain(t, ch); len(got) != 0 {
			t.Errorf("expected no further utterances after cancel, got %v", got)
		}
	})
}
