// Package compute discovers compute devices and runs the pixel
// classification kernel on them.
//
// Devices come from platforms held by a Registry:
//
//   - host: goroutine-backed devices, always present. Several virtual host
//     devices can be configured to emulate a heterogeneous machine.
//   - opencl: every OpenCL device of the installed platforms, compiled in with
//     the opencl build tag.
//
// Each device opens a Session bound to one horizontal band of the image.
// Sessions expose asynchronous upload, launch and download operations that
// return Events:
//
//	reg, _ := compute.DefaultRegistry(compute.RegistryOptions{})
//	devices, _ := reg.Enumerate(compute.FilterAll)
//	s, _ := devices[0].Open(spec)
//	up, _ := s.Upload(bodies)
//	run, _ := s.Launch(dynamo.Shape{X: 32, Y: 1}, up)
//	done, _ := s.Download(ids, run)
//	err := done.Wait()
//
// Build with OpenCL support:
//
//	go build -tags opencl ./...
package compute
