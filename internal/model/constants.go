package model

// Role determines which board operations a user may perform.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleEditor    Role = "editor"
	RoleCommenter Role = "commenter"
	RoleViewer    Role = "viewer"
)

func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the assignable roles. RoleOwner is
// implicit (derived from Board.OwnerID) and is never stored in a
// permission entry.
func (r Role) Valid() bool {
	switch r {
	case RoleEditor, RoleCommenter, RoleViewer:
		return true
	}
	return false
}

// Capability predicates. These are derived from the role alone; handlers
// must resolve the role through the board first and never grant anything
// based on identity directly.

func (r Role) CanView() bool {
	return r == RoleOwner || r == RoleEditor || r == RoleCommenter || r == RoleViewer
}

func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

func (r Role) CanComment() bool {
	return r == RoleOwner || r == RoleEditor || r == RoleCommenter
}

// IsOwner gates pin-message, save-version and load-version, which are
// stricter than CanEdit.
func (r Role) IsOwner() bool {
	return r == RoleOwner
}

// DrawingType is the closed set of shapes a client may draw.
type DrawingType string

const (
	DrawingFreehand  DrawingType = "freehand"
	DrawingLine      DrawingType = "line"
	DrawingRectangle DrawingType = "rectangle"
	DrawingCircle    DrawingType = "circle"
	DrawingText      DrawingType = "text"
	DrawingEraser    DrawingType = "eraser"
	DrawingTriangle  DrawingType = "triangle"
	DrawingArrow     DrawingType = "arrow"
	DrawingSticky    DrawingType = "sticky"
)

func (d DrawingType) Valid() bool {
	switch d {
	case DrawingFreehand, DrawingLine, DrawingRectangle, DrawingCircle,
		DrawingText, DrawingEraser, DrawingTriangle, DrawingArrow, DrawingSticky:
		return true
	}
	return false
}
