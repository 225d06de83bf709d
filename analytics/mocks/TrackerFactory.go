package mocks

import (
	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/mock"
)

type TrackerFactory struct {
	mock.Mock
}

func (_m *TrackerFactory) Execute(logger log.Logger, properties ...analytics.Properties) analytics.Tracker {
	ret := _m.Called(logger, properties)

	var r0 analytics.Tracker
	if rf, ok := ret.Get(0).(func(log.Logger, ...analytics.Properties) analytics.Tracker); ok {
		r0 = rf(logger, properties...)
	} else {
		r0, _ = ret.Get(0).(analytics.Tracker)
	}

	return r0
}
