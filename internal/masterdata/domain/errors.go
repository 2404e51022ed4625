package masterdata

import "errors"

var (
	ErrDeviceNotFound  = errors.New("masterdata: device not found")
	ErrFactoryNotFound = errors.New("masterdata: factory not found")
	ErrDeviceExists    = errors.New("masterdata: device already exists")
)
