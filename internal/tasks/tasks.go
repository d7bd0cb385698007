package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeLicenseGraceScan = "license:grace:scan"
)

type GraceScanPayload struct{}

func NewLicenseGraceScanTask(opts ...asynq.Option) (*asynq.Task, error) {
	payload := GraceScanPayload{}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	uniqueOpt := asynq.Unique(1 * time.Hour)
	allOpts := append(opts, uniqueOpt)

	return asynq.NewTask(TypeLicenseGraceScan, payloadBytes, allOpts...), nil
}
