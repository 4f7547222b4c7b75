// Package usbid reads the USB ID database (usb.ids) to name vendors,
// products and device classes.
//
// The database is a text file distributed with most Linux systems. Vendor
// lines carry a 4-digit hex VID; the tab-indented lines that follow name that
// vendor's products. A later "C" section names the device classes and their
// subclasses.
//
// # Usage
//
//	db, err := usbid.Open()
//	if err != nil {
//	    // No database installed; names are unavailable.
//	}
//	fmt.Println(db.Vendor(0x1d6b), db.Product(0x1d6b, 0x0002))
//
// A nil *Database answers every lookup with the empty string.
//
// A Database is immutable once parsed and safe for concurrent use.
package usbid
