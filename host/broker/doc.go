// Package broker implements the client side of a privileged USB broker.
//
// An unprivileged process cannot open usbfs device nodes itself. Instead it
// connects to a trusted broker over a local stream socket and receives open
// descriptors as SCM_RIGHTS ancillary data. The same broker publishes device
// arrival and removal events.
//
// # Wire Protocol
//
// Every string is a frame: a 16-bit big-endian length followed by that many
// bytes. Two request shapes share one endpoint:
//
//   - Handle request: the client sends the device path as a frame and the
//     broker replies with one status byte carrying exactly one descriptor.
//   - Subscription: the client sends an empty frame. The broker replies with
//     the names of the attached devices, an empty frame, and then one
//     action byte plus a name frame per live event.
//
// # Usage
//
//	client := broker.NewClient()
//
//	f, err := client.OpenDevice(1, 2)
//	if err != nil {
//	    return pkg.Code(err)
//	}
//	defer f.Close()
//
//	m, err := client.StartMonitor(broker.RegistryHandler(registry, nil))
//	if err != nil {
//	    return err
//	}
//	defer m.Stop()
//
// # Descriptor Safety
//
// Every descriptor the package creates or receives is close-on-exec. A
// received message that is truncated, carries unexpected control data or
// more descriptors than requested is rejected as a whole, and each
// descriptor the kernel installed for it is closed before returning.
//
// Blocking calls are retried when interrupted by a signal and are otherwise
// unbounded; there are no timeouts.
package broker
