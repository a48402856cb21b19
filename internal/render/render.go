package render

import "github.com/relabs-tech/reach_rig/internal/stimulus"

// Renderer is the drawing collaborator for the sampling loop. The loop
// pairs ScheduleAsync with CheckAsyncReady so a slow frame never stalls
// sensor polling longer than one refresh interval; Update is the
// synchronous form used outside the hot loop.
type Renderer interface {
	DrawElements(elems []stimulus.Element)
	EmptyScreen()
	Update() error
	ScheduleAsync()
	CheckAsyncReady() bool
}

// Null discards everything. Used by tests and headless practice analysis.
type Null struct{}

func (Null) DrawElements([]stimulus.Element) {}
func (Null) EmptyScreen()                    {}
func (Null) Update() error                   { return nil }
func (Null) ScheduleAsync()                  {}
func (Null) CheckAsyncReady() bool           { return true }
