// Package runtime wires storage, config, and the ingestion facades into a
// single-node shardsink instance. It exposes Open/Close, basic health
// checks, and helpers that build receivers, block stores, and checkpoint
// handles over the shared database.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	rcv := rt.NewReceiver("orders")
//	rcv.Start()
//	defer rcv.Stop()
package runtime
