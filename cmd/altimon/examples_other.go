//go:build !darwin

package main

const (
	exampleDeviceAddress = "AA:BB:CC:DD:EE:FF"
	deviceAddressNote    = "Device address format: MAC address, e.g. AA:BB:CC:DD:EE:FF\n  Use 'altimon scan' to discover devices, or --transport serial with a port such as /dev/ttyACM0"
)
