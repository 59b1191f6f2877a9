package registry

import "testing"

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	updates := reg.Watch("Batch")

	reg.Register("Batch", ServiceInstance{Addr: "a", Weight: 1}, 10)
	reg.Register("Batch", ServiceInstance{Addr: "b", Weight: 1}, 10)
	// re-registering replaces rather than duplicates
	reg.Register("Batch", ServiceInstance{Addr: "a", Weight: 3, Methods: []string{"getInfo"}}, 10)

	instances, err := reg.Discover("Batch")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	latest := <-updates
	if len(latest) != 2 {
		t.Fatalf("expect watcher to see the latest list of 2, got %d", len(latest))
	}

	reg.Deregister("Batch", "b")
	instances, _ = reg.Discover("Batch")
	if len(instances) != 1 || instances[0].Addr != "a" || instances[0].Weight != 3 {
		t.Fatalf("unexpected instances after deregister: %+v", instances)
	}
	if latest := <-updates; len(latest) != 1 {
		t.Fatalf("expect watcher to see 1 instance, got %d", len(latest))
	}

	if instances, _ := reg.Discover("Unknown"); len(instances) != 0 {
		t.Fatalf("expect no instances for unknown service, got %d", len(instances))
	}
}
