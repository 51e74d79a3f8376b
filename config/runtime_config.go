package config

// RuntimeConfig is the part of the config that may be changed while the
// program runs. Hardware and the group layout need a restart.
type RuntimeConfig struct {
	Groups []RuntimeGroupConfig `json:"Groups"`
}

type RuntimeGroupConfig struct {
	UID        string  `json:"UID"`
	UpdateRate float64 `json:"UpdateRate"`
}

// Runtime extracts the runtime-changeable settings of c.
func (c *Config) Runtime() RuntimeConfig {
	ret := RuntimeConfig{Groups: make([]RuntimeGroupConfig, 0, len(c.Groups))}
	for _, g := range c.Groups {
		ret.Groups = append(ret.Groups, RuntimeGroupConfig{UID: g.UID, UpdateRate: g.UpdateRate})
	}
	return ret
}

// Merge applies rc to c. Groups not mentioned in rc keep their settings.
// It returns the UIDs in rc that do not name a configured group.
func (c *Config) Merge(rc RuntimeConfig) []string {
	var unknown []string
	for _, rg := range rc.Groups {
		found := false
		for i := range c.Groups {
			if c.Groups[i].UID == rg.UID {
				c.Groups[i].UpdateRate = rg.UpdateRate
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, rg.UID)
		}
	}
	return unknown
}
