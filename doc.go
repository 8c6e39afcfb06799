// Package h2env configures, launches and remotely stops H2 database servers
// for build and test pipelines.
//
// A Configuration lists the protocol services to run (tcp, pg, web) together
// with the server, launcher and shutdown settings. From it h2env derives the
// server's flag sequence (Args), the full launcher command line
// (CommandLine), a spawned external server (Spawn), an in-process server
// (Create, CreateAll) and the remote shutdown request (Shutdown).
//
// # Basic Usage
//
//	import "github.com/giantswarm/h2env"
//
//	cfg := h2env.New(
//	    h2env.WithServerLibrary("/opt/h2/h2.jar"),
//	    h2env.WithStorageDirectory("target/h2"),
//	    h2env.WithShutdownCredential("secret"),
//	)
//
//	proc, err := h2env.Spawn(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer proc.Close()
//
//	if err := proc.WaitReady(ctx, 30*time.Second); err != nil {
//	    log.Fatal(err)
//	}
//	// Run tests against jdbc:h2:tcp://localhost:9092/...
//
//	if err := proc.Stop(10 * time.Second); err != nil {
//	    log.Fatal(err)
//	}
//
// # Multiple Services
//
// Services are emitted in insertion order:
//
//	tcp, _ := h2env.NewService("tcp", 9092, false, false)
//	pg, _ := h2env.NewService("pg", 5435, true, false)
//	cfg := h2env.New(h2env.WithServices(tcp, pg))
//	h2env.Args(cfg)
//	// [-tcp -tcpPort 9092 -pg -pgPort 9092 -pgAllowOthers -tcpPassword h2env]
//
// Every -<id>Port flag carries the configuration's single legacy port (see
// Configuration.SetPort). Use WithServicePorts to emit each service's own
// port instead.
//
// # In-Process Servers
//
// Create starts a lightweight Go server for the configuration's primary
// service without a Java runtime. The tcp server answers h2env's line-based
// shutdown request, which Shutdown sends:
//
//	srv, err := h2env.Create(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Later, possibly from another process:
//	if err := h2env.Shutdown(ctx, cfg); err != nil {
//	    log.Fatal(err)
//	}
//	<-srv.Done()
//
// Shutdown does not speak the Java server's protocol; stop a spawned
// process with Process.Stop.
package h2env
