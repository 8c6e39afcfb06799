package h2env

// SpawnSnapshot holds the resolved spawn settings for test assertions.
// Exported only via export_test.go so that the _test package can verify the
// environment fallbacks without spawning a process.
type SpawnSnapshot struct {
	Launcher   string
	Library    string
	EntryPoint string
	Args       []string
	StripFlags []string
	ReadyHost  string
	ReadyPort  int
}

// ResolveSpawnForTesting resolves cfg the way Spawn does and returns a
// SpawnSnapshot of the result.
func ResolveSpawnForTesting(cfg *Configuration) (SpawnSnapshot, error) {
	sc, err := spawnConfig(cfg)
	if err != nil {
		return SpawnSnapshot{}, err
	}
	return SpawnSnapshot{
		Launcher:   sc.Launcher,
		Library:    sc.Library,
		EntryPoint: sc.EntryPoint,
		Args:       sc.Args,
		StripFlags: sc.StripFlags,
		ReadyHost:  sc.ReadyHost,
		ReadyPort:  sc.ReadyPort,
	}, nil
}
