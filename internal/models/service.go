package models

// CreateRequest is the body of POST /create on the detection service.
type CreateRequest struct {
	Files    CreateFiles `json:"files"`
	Settings *Settings   `json:"settings"`
}

// CreateFiles carries structure file contents captured at submission time.
type CreateFiles struct {
	PDB       string `json:"pdb"`
	PDBLigand string `json:"pdb_ligand,omitempty"`
}

// ServiceReply is the JSON payload returned by both POST /create and GET /{id}.
type ServiceReply struct {
	ID     string     `json:"id,omitempty"`
	Status string     `json:"status"`
	Output *JobOutput `json:"output,omitempty"`
}

// SubmitResult is the outcome of a create request.
// Known is set when the service answered with an existing job's full
// payload (including output) instead of queueing a new one.
type SubmitResult struct {
	ID     string
	Status JobStatus
	Output *JobOutput
	Known  bool
}

// FetchResult is the current state of a job on the service.
type FetchResult struct {
	Status JobStatus
	Output *JobOutput
}

// Extent is the axis-aligned bounding box of a structure object.
type Extent struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}
