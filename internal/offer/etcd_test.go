package offer

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// TestEtcdDirectory requires a running etcd cluster:
//
//	COORD_TEST_ETCD=http://localhost:2379 go test ./internal/offer/...
func TestEtcdDirectory(t *testing.T) {
	addr := os.Getenv("COORD_TEST_ETCD")
	if addr == "" {
		t.Skip("set COORD_TEST_ETCD=http://localhost:2379 to run etcd integration tests")
	}

	client, err := NewEtcdClient(strings.Split(addr, ","))
	if err != nil {
		t.Fatalf("NewEtcdClient: %v", err)
	}
	defer client.Close()

	clock := newFakeClock()
	prefix := fmt.Sprintf("/securesend-test/%d", time.Now().UnixNano())
	exerciseDirectory(t, NewEtcdDirectory(client, prefix, clock), clock)
}

func TestLeaseSeconds(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int64
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{15 * time.Minute, 900},
	}
	for _, c := range cases {
		if got := leaseSeconds(c.in); got != c.want {
			t.Fatalf("leaseSeconds(%v)=%d, want %d", c.in, got, c.want)
		}
	}
}

func TestNewEtcdDirectory_DefaultPrefix(t *testing.T) {
	d := NewEtcdDirectory(nil, "", nil)
	if got := d.key("abc"); got != DefaultEtcdKeyPrefix+"/abc" {
		t.Fatalf("key=%q, want %q", got, DefaultEtcdKeyPrefix+"/abc")
	}
	d = NewEtcdDirectory(nil, "/x/", nil)
	if got := d.key("abc"); got != "/x/abc" {
		t.Fatalf("key=%q, want /x/abc", got)
	}
}
