package backend

// ScriptStatus is the state reported by /scripts/status.
type ScriptStatus struct {
	Status string `json:"status"` // "running" or "stopped"
}

// Running reports whether a script process is alive.
func (s ScriptStatus) Running() bool { return s.Status == "running" }

// TestStatus is the test harness state.
type TestStatus struct {
	Running bool   `json:"running"`
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	Message string `json:"message,omitempty"`
}

// TrainingStatus is the RL trainer state.
type TrainingStatus struct {
	Running       bool    `json:"running"`
	Iterations    int     `json:"iterations"`
	Episodes      int     `json:"episodes"`
	LastReward    float64 `json:"last_reward"`
	BestReward    float64 `json:"best_reward"`
	LastSaveTimeS float64 `json:"last_save_time_s"`
}

// Model is one saved policy.
type Model struct {
	Name string `json:"name"`
}

// ModelList is the response of /rl/models.
type ModelList struct {
	Models []Model `json:"models"`
	Active string  `json:"active,omitempty"`
}

// Names returns the model names in backend order.
func (l ModelList) Names() []string {
	names := make([]string, len(l.Models))
	for i, m := range l.Models {
		names[i] = m.Name
	}
	return names
}

// Metrics are per-episode rewards and their rolling mean.
type Metrics struct {
	Rewards []float64 `json:"rewards"`
	Rolling []float64 `json:"rolling"`
}

// Bounds is the axis-aligned flight volume.
type Bounds struct {
	MinXYZ []float64 `json:"min_xyz"`
	MaxXYZ []float64 `json:"max_xyz"`
}

// Obstacle is a spherical obstacle.
type Obstacle struct {
	Center []float64 `json:"center"`
	Radius float64   `json:"radius"`
}

// Scene is the world layout.
type Scene struct {
	Bounds    Bounds     `json:"bounds"`
	Obstacles []Obstacle `json:"obstacles"`
}

// RecordingStatus is the telemetry recorder state.
type RecordingStatus struct {
	Recording bool `json:"recording"`
	Playback  bool `json:"playback"`
	Frames    int  `json:"frames"`
}

// statusBody is the {"status": "..."} acknowledgement most actions return.
type statusBody struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

type nameBody struct {
	Name string `json:"name"`
}

type sourceBody struct {
	Source string `json:"source"`
}
