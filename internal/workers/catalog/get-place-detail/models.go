// internal/workers/catalog/get-place-detail/models.go
package getplacedetail

import "meddir-workers/internal/models"

type Input struct {
	Slug string `json:"slug,omitempty"`
}

type Output struct {
	Place       models.Place    `json:"place"`
	Guide       models.Guide    `json:"guide"`
	ProsAndCons models.ProsCons `json:"prosAndCons"`
}

const inputSchema = `{
  "type": "object",
  "required": ["slug"],
  "properties": {
    "slug": {"type": "string", "minLength": 1, "maxLength": 200}
  }
}`
