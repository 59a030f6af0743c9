package jobs

import (
	"testing"
	"time"
)

func TestRetryPolicyExponential(t *testing.T) {
	p := RetryPolicy{
		Strategy:  StrategyExponential,
		BaseDelay: time.Minute,
		MaxDelay:  10 * time.Minute,
		Factor:    2,
	}

	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{4, 10 * time.Minute},
		{20, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.retry); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.retry, got, tc.want)
		}
	}
}

func TestRetryPolicyLinear(t *testing.T) {
	p := RetryPolicy{
		Strategy:  StrategyLinear,
		BaseDelay: 30 * time.Second,
		MaxDelay:  5 * time.Minute,
		Increment: 15 * time.Second,
	}

	if got := p.Delay(0); got != 30*time.Second {
		t.Fatalf("Delay(0) = %v, want 30s", got)
	}
	if got := p.Delay(4); got != 90*time.Second {
		t.Fatalf("Delay(4) = %v, want 90s", got)
	}
	if got := p.Delay(100); got != 5*time.Minute {
		t.Fatalf("Delay(100) = %v, want cap at 5m", got)
	}
}

func TestRetryPolicyLinearDefaultsIncrementToBase(t *testing.T) {
	p := RetryPolicy{Strategy: StrategyLinear, BaseDelay: time.Minute, MaxDelay: time.Hour}
	if got := p.Delay(3); got != 4*time.Minute {
		t.Fatalf("Delay(3) = %v, want 4m", got)
	}
}

func TestRetryPolicyFixed(t *testing.T) {
	p := RetryPolicy{Strategy: StrategyFixed, BaseDelay: 45 * time.Second, MaxDelay: time.Hour}
	for _, retry := range []int{0, 1, 5, 50} {
		if got := p.Delay(retry); got != 45*time.Second {
			t.Fatalf("Delay(%d) = %v, want 45s", retry, got)
		}
	}
}

func TestRetryPolicyFixedIgnoresJitter(t *testing.T) {
	p := RetryPolicy{Strategy: StrategyFixed, BaseDelay: 10 * time.Second, MaxDelay: time.Hour, Jitter: true}
	for _, r := range []float64{0, 0.5, 1} {
		p.randFloat = func() float64 { return r }
		for _, retry := range []int{0, 3, 9} {
			if got := p.Delay(retry); got != 10*time.Second {
				t.Fatalf("Delay(%d) with rand=%v = %v, want exactly 10s", retry, r, got)
			}
		}
	}
}

func TestRetryPolicyJitterStaysBounded(t *testing.T) {
	p := NewRetryPolicy(time.Minute, 10*time.Minute)

	// Pin the random source to the extremes and check the invariants hold.
	for _, r := range []float64{0, 0.5, 1} {
		p.randFloat = func() float64 { return r }
		for retry := 0; retry < 12; retry++ {
			got := p.Delay(retry)
			if got < p.BaseDelay {
				t.Fatalf("Delay(%d) with rand=%v = %v, below base %v", retry, r, got, p.BaseDelay)
			}
			if got > p.MaxDelay {
				t.Fatalf("Delay(%d) with rand=%v = %v, above max %v", retry, r, got, p.MaxDelay)
			}
		}
	}
}

func TestRetryPolicyNegativeRetryTreatedAsZero(t *testing.T) {
	p := RetryPolicy{Strategy: StrategyExponential, BaseDelay: time.Second, MaxDelay: time.Minute, Factor: 2}
	if got := p.Delay(-3); got != time.Second {
		t.Fatalf("Delay(-3) = %v, want base", got)
	}
}

func TestExponentialBackoffHelper(t *testing.T) {
	if got := ExponentialBackoff(3, time.Second, time.Hour, false); got != 8*time.Second {
		t.Fatalf("ExponentialBackoff(3) = %v, want 8s", got)
	}
}

func TestRetryDelayFuncMatchesDelay(t *testing.T) {
	p := RetryPolicy{Strategy: StrategyExponential, BaseDelay: time.Second, MaxDelay: time.Minute, Factor: 2}
	if got, want := p.RetryDelayFunc(2, nil, nil), p.Delay(2); got != want {
		t.Fatalf("RetryDelayFunc = %v, want %v", got, want)
	}
}
