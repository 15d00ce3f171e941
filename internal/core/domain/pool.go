package domain

// Pool is a named, auto-scaling collection of pods
type Pool struct {
	Name       string `json:"name"`
	APIKey     string `json:"-"`
	MinimumVMs int    `json:"minimum_vms"`
}

// PoolStatus is a consistent snapshot of a pool.
// Available + Claimed == Total == len(Pods).
type PoolStatus struct {
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
	Claimed   int    `json:"claimed"`
	Pods      []Pod  `json:"pods"`
}
