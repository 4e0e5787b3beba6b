//go:build darwin

package main

const (
	exampleDeviceAddress = "01234567-89AB-CDEF-0123-456789ABCDEF"
	deviceAddressNote    = "Device address format: 128-bit UUID as reported by CoreBluetooth\n  Use 'altimon scan' to discover devices, or --transport serial with a port such as /dev/cu.usbmodem1101"
)
