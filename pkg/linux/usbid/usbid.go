package usbid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultPaths lists the standard locations for the USB ID database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// ErrNotFound indicates that none of the searched paths holds a database.
var ErrNotFound = errors.New("usb.ids database not found")

// Database holds vendor, product and class names.
type Database struct {
	vendors    map[uint16]string // VID -> vendor name
	products   map[uint32]string // (VID<<16)|PID -> product name
	classes    map[uint8]string  // class -> class name
	subclasses map[uint16]string // (class<<8)|subclass -> subclass name
	source     string
}

func newDatabase() *Database {
	return &Database{
		vendors:    make(map[uint16]string),
		products:   make(map[uint32]string),
		classes:    make(map[uint8]string),
		subclasses: make(map[uint16]string),
	}
}

// Open parses the first readable database among paths, or DefaultPaths if
// none are given.
func Open(paths ...string) (*Database, error) {
	if len(paths) == 0 {
		paths = DefaultPaths
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		db, err := Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		db.source = path
		return db, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrNotFound, strings.Join(paths, ", "))
}

// section is the part of the file a line belongs to.
type section int

const (
	sectionNone section = iota
	sectionVendor
	sectionClass
)

// Parse reads a database in usb.ids format. Lines it does not recognise are
// skipped.
func Parse(r io.Reader) (*Database, error) {
	db := newDatabase()
	scanner := bufio.NewScanner(r)

	var (
		sec   = sectionNone
		vid   uint16
		class uint8
	)

	for scanner.Scan() {
		line := scanner.Text()

		// Skip empty lines and comments
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		switch {
		case strings.HasPrefix(line, "\t\t"):
			// Interface and protocol lines are not used.

		case line[0] == '\t':
			id, name, ok := splitEntry(line[1:], 4)
			if sec == sectionVendor && ok {
				db.products[uint32(vid)<<16|uint32(id)] = name
				continue
			}
			if id, name, ok = splitEntry(line[1:], 2); sec == sectionClass && ok {
				db.subclasses[uint16(class)<<8|uint16(id)] = name
			}

		case strings.HasPrefix(line, "C "):
			id, name, ok := splitEntry(line[2:], 2)
			if !ok {
				sec = sectionNone
				continue
			}
			sec, class = sectionClass, uint8(id)
			db.classes[class] = name

		default:
			id, name, ok := splitEntry(line, 4)
			if !ok {
				// Another section (AT, HID, R, ...) or a malformed vendor
				sec = sectionNone
				continue
			}
			sec, vid = sectionVendor, uint16(id)
			db.vendors[vid] = name
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return db, nil
}

// splitEntry parses "<digits hex digits>  <name>".
func splitEntry(s string, digits int) (uint64, string, bool) {
	if len(s) < digits+2 || s[digits] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(s[:digits], 16, digits*4)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimLeft(s[digits:], " ")
	if name == "" {
		return 0, "", false
	}
	return id, name, true
}

// Source returns the path the database was read from, if any.
func (db *Database) Source() string {
	if db == nil {
		return ""
	}
	return db.source
}

// Vendor returns the vendor name for vid, or "" if unknown.
func (db *Database) Vendor(vid uint16) string {
	if db == nil {
		return ""
	}
	return db.vendors[vid]
}

// Product returns the product name for vid and pid, or "" if unknown.
func (db *Database) Product(vid, pid uint16) string {
	if db == nil {
		return ""
	}
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Class returns the name of a device class, or "" if unknown.
func (db *Database) Class(class uint8) string {
	if db == nil {
		return ""
	}
	return db.classes[class]
}

// Subclass returns the name of a subclass within class, or "" if unknown.
func (db *Database) Subclass(class, subclass uint8) string {
	if db == nil {
		return ""
	}
	return db.subclasses[uint16(class)<<8|uint16(subclass)]
}

// Counts returns the number of vendors and products in the database.
func (db *Database) Counts() (vendors, products int) {
	if db == nil {
		return 0, 0
	}
	return len(db.vendors), len(db.products)
}
