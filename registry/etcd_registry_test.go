package registry

import (
	"os"
	"strings"
	"testing"
	"time"
)

// etcdEndpoints returns the endpoints from ETCD_ENDPOINTS or skips the test.
func etcdEndpoints(t *testing.T) []string {
	t.Helper()
	env := os.Getenv("ETCD_ENDPOINTS")
	if env == "" {
		t.Skip("ETCD_ENDPOINTS not set")
	}
	return strings.Split(env, ",")
}

func TestRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0", Methods: []string{"init", "getInfo"}}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}

	if err := reg.Register("BatchTest", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("BatchTest", inst2, 10); err != nil {
		t.Fatal(err)
	}

	instances, err := reg.Discover("BatchTest")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister("BatchTest", inst1.Addr); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	instances, err = reg.Discover("BatchTest")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("expect 1 instance after deregister, got %d", len(instances))
	}
	if instances[0].Addr != inst2.Addr {
		t.Fatalf("expect %s, got %s", inst2.Addr, instances[0].Addr)
	}

	reg.Deregister("BatchTest", inst2.Addr)
}
