package model

// Linkage values of a structure template.
const (
	LinkNone   = ""
	LinkBottom = "bottom" // selected node becomes a parent of the first step
	LinkTop    = "top"    // last step becomes a parent of the selected node
	LinkTrack  = "track"  // last step is added as a track of the selected view
)

// StructureStep is one template-local step of a structure template.
type StructureStep struct {
	ID       int    `koanf:"id" json:"id"`
	Desc     string `koanf:"desc" json:"desc,omitempty"`
	Type     string `koanf:"type" json:"type"`
	Parents  []int  `koanf:"parents" json:"parents"`
	Children []int  `koanf:"children" json:"children"`
}

// StructureTemplate describes a multi-step creation wizard.
type StructureTemplate struct {
	Name      string          `koanf:"-" json:"name"`
	Core      bool            `koanf:"core" json:"core,omitempty"`
	Linked    string          `koanf:"linked" json:"linked,omitempty"`
	Title     string          `koanf:"title" json:"title"`
	Desc      string          `koanf:"desc" json:"desc,omitempty"`
	Structure []StructureStep `koanf:"structure" json:"structure"`
}

// Properties describes a node type as shown to the user.
type Properties struct {
	Type                     string `koanf:"type" json:"type"`
	Title                    string `koanf:"title" json:"title"`
	Desc                     string `koanf:"desc" json:"desc,omitempty"`
	MaxDataSources           int    `koanf:"maxDataSources" json:"maxDataSources,omitempty"`
	MultiViewFacadeSupported bool   `koanf:"multiViewFacadeSupported" json:"multiViewFacadeSupported,omitempty"`
	Track                    bool   `koanf:"track" json:"track,omitempty"`
	Disabled                 bool   `koanf:"disabled" json:"disabled,omitempty"`
}
