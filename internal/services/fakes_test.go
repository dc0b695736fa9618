package services_test

import (
	"errors"

	"apexdispatch/internal/models"
	"apexdispatch/internal/platforms"
)

var errDispatch = errors.New("backend refused the job")

// failOn rejects jobs whose parameter key holds one of values.
func failOn(key string, values ...any) func(models.Params) error {
	return func(p models.Params) error {
		for _, v := range values {
			if p[key] == v {
				return &platforms.Error{Platform: models.LabelOpenEO, Op: "execute job", Err: errDispatch}
			}
		}
		return nil
	}
}
