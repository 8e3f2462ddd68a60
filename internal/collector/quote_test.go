package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestChangePercent(t *testing.T) {
	cases := []struct {
		prev, cur float64
		want      float64
		ok        bool
	}{
		{100, 110, 10, true},
		{200, 150, -25, true},
		{0, 110, 0, false},
		{math.NaN(), 1, 0, false},
		{math.Inf(1), 1, 0, false},
	}
	for _, c := range cases {
		got, ok := ChangePercent(c.prev, c.cur)
		if ok != c.ok {
			t.Fatalf("ChangePercent(%v,%v) ok = %v, want %v", c.prev, c.cur, ok, c.ok)
		}
		if ok && math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("ChangePercent(%v,%v) = %v, want %v", c.prev, c.cur, got, c.want)
		}
	}
}

func TestSetChangeLeavesFieldsUnsetOnZeroPrevious(t *testing.T) {
	q := QuoteResult{Current: float64Ptr(110)}
	q.setChange(0, 110)
	if q.Change != nil || q.ChangePercent != nil {
		t.Fatalf("expected change fields unset, got change=%v pct=%v", q.Change, q.ChangePercent)
	}

	q.setChange(100, 110)
	if q.Change == nil || *q.Change != 10 {
		t.Fatalf("change = %v, want 10", q.Change)
	}
	if q.ChangePercent == nil || math.Abs(*q.ChangePercent-10) > 1e-9 {
		t.Fatalf("changePercent = %v, want 10", q.ChangePercent)
	}
}

func TestChangeFromHistoryNeedsTwoPoints(t *testing.T) {
	q := QuoteResult{Current: float64Ptr(5), History: []Point{{"2024-01-02", 5}}}
	q.changeFromHistory()
	if q.Change != nil || q.ChangePercent != nil {
		t.Fatalf("single point must not produce change fields")
	}

	q.History = append([]Point{{"2024-01-01", 4}}, q.History...)
	q.changeFromHistory()
	if q.ChangePercent == nil || math.Abs(*q.ChangePercent-25) > 1e-9 {
		t.Fatalf("changePercent = %v, want 25", q.ChangePercent)
	}
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"":        nil,
		"auth":    fmt.Errorf("x: %w", ErrAuth),
		"network": fmt.Errorf("x: %w", ErrNetwork),
		"data":    errors.Join(errors.New("a"), fmt.Errorf("b: %w", ErrDataShape)),
		"parse":   ErrParse,
		"unknown": errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestFirstSuccessFallsThrough(t *testing.T) {
	var calls []string
	v, name, err := FirstSuccess(context.Background(),
		Provider[int]{Name: "a", Fetch: func(context.Context) (int, error) {
			calls = append(calls, "a")
			return 0, ErrNetwork
		}},
		Provider[int]{Name: "b", Fetch: func(context.Context) (int, error) {
			calls = append(calls, "b")
			panic("bad payload")
		}},
		Provider[int]{Name: "c", Fetch: func(context.Context) (int, error) {
			calls = append(calls, "c")
			return 42, nil
		}},
		Provider[int]{Name: "d", Fetch: func(context.Context) (int, error) {
			calls = append(calls, "d")
			return 7, nil
		}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 || name != "c" {
		t.Fatalf("got (%d, %q), want (42, \"c\")", v, name)
	}
	if len(calls) != 3 {
		t.Fatalf("calls = %v, want a,b,c", calls)
	}
}

func TestFirstSuccessAllFail(t *testing.T) {
	_, _, err := FirstSuccess(context.Background(),
		Provider[string]{Name: "a", Fetch: func(context.Context) (string, error) { return "", ErrAuth }},
		Provider[string]{Name: "b", Fetch: func(context.Context) (string, error) { return "", ErrDataShape }},
	)
	if err == nil {
		t.Fatalf("expected error when all providers fail")
	}
	if !errors.Is(err, ErrAuth) || !errors.Is(err, ErrDataShape) {
		t.Fatalf("joined error should keep both causes: %v", err)
	}

	if _, _, err := FirstSuccess[int](context.Background()); err == nil {
		t.Fatalf("expected error with no providers")
	}
}

func TestFirstSuccessStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, _, err := FirstSuccess(ctx, Provider[int]{Name: "a", Fetch: func(context.Context) (int, error) {
		called = true
		return 1, nil
	}})
	if err == nil || called {
		t.Fatalf("cancelled context should skip providers (called=%v err=%v)", called, err)
	}
}

func TestPremium(t *testing.T) {
	pct, ok := Premium(105_000_000, 70_000, 1_400)
	if !ok {
		t.Fatalf("expected premium to be computed")
	}
	// 70000*1400 = 98,000,000 → (105-98)/98*100
	want := (105_000_000.0 - 98_000_000.0) / 98_000_000.0 * 100
	if math.Abs(pct-want) > 1e-9 {
		t.Fatalf("premium = %v, want %v", pct, want)
	}
	if _, ok := Premium(1, 0, 1400); ok {
		t.Fatalf("zero global price must not compute a premium")
	}
}
