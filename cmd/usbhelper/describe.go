//go:build linux || darwin

package main

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ardnew/usbhelper/pkg"
	"github.com/ardnew/usbhelper/pkg/linux/usbid"
)

// deviceDescriptorSize is the size of a USB device descriptor. A usbfs node
// reads back the device descriptor first, followed by the configurations.
const deviceDescriptorSize = 18

// descriptorTypeDevice is bDescriptorType of a device descriptor.
const descriptorTypeDevice = 0x01

// deviceDescriptor represents a USB device descriptor.
type deviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// parseDeviceDescriptor decodes the little-endian device descriptor at the
// start of data.
func parseDeviceDescriptor(data []byte) (deviceDescriptor, error) {
	if len(data) < deviceDescriptorSize {
		return deviceDescriptor{}, fmt.Errorf("%w: device descriptor is %d bytes", pkg.ErrBufferTooSmall, len(data))
	}
	if data[0] < deviceDescriptorSize || data[1] != descriptorTypeDevice {
		return deviceDescriptor{}, fmt.Errorf("%w: length %d type 0x%02x", pkg.ErrProtocol, data[0], data[1])
	}
	return deviceDescriptor{
		Length:            data[0],
		DescriptorType:    data[1],
		USBVersion:        binary.LittleEndian.Uint16(data[2:]),
		DeviceClass:       data[4],
		DeviceSubClass:    data[5],
		DeviceProtocol:    data[6],
		MaxPacketSize0:    data[7],
		VendorID:          binary.LittleEndian.Uint16(data[8:]),
		ProductID:         binary.LittleEndian.Uint16(data[10:]),
		DeviceVersion:     binary.LittleEndian.Uint16(data[12:]),
		ManufacturerIndex: data[14],
		ProductIndex:      data[15],
		SerialNumberIndex: data[16],
		NumConfigurations: data[17],
	}, nil
}

// formatBCD renders a binary-coded decimal release number as "2.00".
func formatBCD(v uint16) string {
	return fmt.Sprintf("%x.%02x", v>>8, v&0xff)
}

// printDescriptor writes a short report of desc, naming the vendor, product
// and class from db when it knows them.
func printDescriptor(w io.Writer, name string, desc deviceDescriptor, db *usbid.Database) {
	fmt.Fprintln(w, name)
	fmt.Fprintf(w, "  ID %04x:%04x", desc.VendorID, desc.ProductID)
	if vendor := db.Vendor(desc.VendorID); vendor != "" {
		fmt.Fprintf(w, " %s", vendor)
	}
	if product := db.Product(desc.VendorID, desc.ProductID); product != "" {
		fmt.Fprintf(w, " %s", product)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  USB %s, device %s\n", formatBCD(desc.USBVersion), formatBCD(desc.DeviceVersion))
	fmt.Fprintf(w, "  class %02x/%02x/%02x", desc.DeviceClass, desc.DeviceSubClass, desc.DeviceProtocol)
	if class := db.Class(desc.DeviceClass); class != "" {
		fmt.Fprintf(w, " %s", class)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  max packet %d, configurations %d\n", desc.MaxPacketSize0, desc.NumConfigurations)
}
