// Package config loads usbhelper configuration from YAML or JSON.
//
// Values absent from a file keep their defaults, so a file only needs the
// settings it changes:
//
//	broker:
//	  endpoint: "@android_libusb_helper"
//	log:
//	  level: debug
//	  file: /var/log/usbhelper.log
//	  max_size_mb: 10
//	metrics:
//	  addr: 127.0.0.1:9464
//
// Load a file and apply its logging section:
//
//	cfg, err := config.Load("/etc/usbhelper.yaml")
//	if err != nil {
//	    return err
//	}
//	closer, err := cfg.Log.Apply()
//	if err != nil {
//	    return err
//	}
//	defer closer.Close()
package config
