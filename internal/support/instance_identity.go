package support

import (
	"os"
	"strings"
	"sync"
)

const (
	envInstanceID     = "RAILWATCH_INSTANCE_ID"
	envInstanceName   = "RAILWATCH_INSTANCE_NAME"
	envInstanceRegion = "RAILWATCH_INSTANCE_REGION"
)

var (
	instanceIDOnce   sync.Once
	instanceIDValue  string
	instanceNameOnce sync.Once
	instanceNameVal  string
	instanceRegOnce  sync.Once
	instanceRegVal   string
)

// GetInstanceID falls back to the hostname, then to "default".
func GetInstanceID() string {
	instanceIDOnce.Do(func() {
		value := GetEnv(envInstanceID, "")
		if value == "" {
			if hostname, err := os.Hostname(); err == nil {
				value = strings.TrimSpace(hostname)
			}
		}
		if value == "" {
			value = "default"
		}
		instanceIDValue = value
	})
	return instanceIDValue
}

func GetInstanceName() string {
	instanceNameOnce.Do(func() {
		instanceNameVal = GetEnv(envInstanceName, GetInstanceID())
	})
	return instanceNameVal
}

func GetInstanceRegion() string {
	instanceRegOnce.Do(func() {
		instanceRegVal = GetEnv(envInstanceRegion, "Unknown")
	})
	return instanceRegVal
}
