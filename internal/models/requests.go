package models

type BaseJobRequest struct {
	Title      string         `json:"title" validate:"required"`
	Label      Label          `json:"label" validate:"required"`
	Service    ServiceDetails `json:"service"`
	Parameters Params         `json:"parameters"`
	Format     OutputFormat   `json:"format" validate:"omitempty,oneof=gtiff netcdf json"`
}

// ParameterDimension names the parameter varied across the children of an upscaling task.
type ParameterDimension struct {
	Name   string `json:"name" validate:"required"`
	Values []any  `json:"values" validate:"min=1"`
}

type UpscalingTaskRequest struct {
	BaseJobRequest
	Dimension *ParameterDimension `json:"dimension" validate:"required"`
}

type ParamRequest struct {
	Label   Label          `json:"label" validate:"required"`
	Service ServiceDetails `json:"service"`
}
