// Package driver is the host-facing entry point of suidriver.
//
// A Driver owns the engine runtime, the descriptor catalog with its loader,
// the object store and the metrics registry. Hosts create tasks through it,
// either synchronously with Execute or in the background with Submit, and
// look them up again by id. Finished tasks have their outcome and result tree
// written to the store; running tasks have their partial tree written
// periodically.
//
// Typical use:
//
//	drv, err := driver.New(driver.Options{Config: cfg})
//	if err != nil {
//	    return err
//	}
//	defer drv.Close()
//	if err := drv.Start(ctx); err != nil {
//	    return err
//	}
//	ctrl, err := drv.Submit(api.TaskConfig{DescriptorID: id})
package driver
