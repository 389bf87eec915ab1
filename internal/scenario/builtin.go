package scenario

// BuiltIn returns the named scripts shipped with the binary.
func BuiltIn() map[string]Script {
	return map[string]Script{
		"hang": {
			Name:        "hang",
			Description: "Target accepts connections but never answers.",
			Loop:        true,
			Steps:       []Step{{Behavior: BehaviorStall}},
		},
		"flapping": {
			Name:        "flapping",
			Description: "Target alternates between healthy and hung; a threshold above one never trips.",
			Loop:        true,
			Steps:       []Step{{Behavior: BehaviorStall}, {Behavior: BehaviorAlive}},
		},
		"degrading": {
			Name:        "degrading",
			Description: "Healthy for a while, then hangs for good.",
			Loop:        false,
			Steps: []Step{
				{Behavior: BehaviorAlive, Repeat: 5},
				{Behavior: BehaviorTrickle, Repeat: 2},
				{Behavior: BehaviorStall, Repeat: 1000000},
			},
		},
		"garbled": {
			Name:        "garbled",
			Description: "Target answers promptly with the wrong payload.",
			Loop:        true,
			Steps:       []Step{{Behavior: BehaviorUnexpected, Payload: "DEAD-SOMETHING"}},
		},
		"recovering": {
			Name:        "recovering",
			Description: "Two failures, one success, repeated; resets the count each time.",
			Loop:        true,
			Steps: []Step{
				{Behavior: BehaviorStall, Repeat: 2},
				{Behavior: BehaviorAlive},
			},
		},
	}
}

// Lookup returns the built-in script name, or loads name as a file path.
func Lookup(name string) (*Script, error) {
	if s, ok := BuiltIn()[name]; ok {
		return &s, nil
	}
	return Load(name)
}
