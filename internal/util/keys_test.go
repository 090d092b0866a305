package util

import "testing"

func TestKeyPrefixes(t *testing.T) {
	cases := map[string]string{
		LockKey("order:1"):       "LOCK:order:1",
		IdempotencyKey("pay:42"): "idpt:pay:42",
		FilterBitsKey("users"):   "bf:ns:users",
		FilterCfgKey("users"):    "bf:cfg:users",
		QueueKey("mail"):         "mq:topic:im:mail",
		DelayQueueKey("mail"):    "mq:topic:delay:mail",
		Join("", "k"):            "k",
		Join("app", "k"):         "app:k",
		Join("app:", "k"):        "app:k",
		Join("app:user", "id:7"): "app:user:id:7",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
}
