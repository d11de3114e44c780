package render

// Theme holds colors for schema rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Edge colors by how the child class is reached.
	EdgeObject string // single object member
	EdgeArray  string // object[] member
	EdgeUnion  string // union arm

	// Member accents.
	Uncertain string // sizes still open
	Undefined string // members never read
	RootFill  string // root class header
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeObject: "#424242", // dark gray
	EdgeArray:  "#0B3D91", // NASA blue
	EdgeUnion:  "#E65100", // deep orange

	Uncertain: "#FC3D21", // NASA red
	Undefined: "#9E9E9E",
	RootFill:  "#ECEFF1", // blue-gray 50
}
