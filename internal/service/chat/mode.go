package chat

// ProcessingMode says which context sources a request uses
type ProcessingMode string

const (
	TextOnly       ProcessingMode = "text_only"
	RAGOnly        ProcessingMode = "rag_only"
	MultimodalOnly ProcessingMode = "multimodal_only"
	MultimodalRAG  ProcessingMode = "multimodal_rag"
)

// UsesRetrieval reports whether text documents are indexed
func (m ProcessingMode) UsesRetrieval() bool {
	return m == RAGOnly || m == MultimodalRAG
}

// UsesImages reports whether images are attached to the question
func (m ProcessingMode) UsesImages() bool {
	return m == MultimodalOnly || m == MultimodalRAG
}

// FilePlan is the routing of uploaded files for one request
type FilePlan struct {
	Mode    ProcessingMode
	Images  []string
	Texts   []string
	Warning string
}

// PlanFiles picks the processing mode from the identified files and the model's image support.
// Images are dropped when the model cannot read them.
func PlanFiles(images, texts []string, imageSupport bool) FilePlan {
	hasImages := len(images) > 0
	hasTexts := len(texts) > 0

	var plan FilePlan
	if hasImages && !imageSupport {
		plan.Warning = "model does not support images, processing text files only"
	}

	switch {
	case hasImages && hasTexts && imageSupport:
		plan.Mode, plan.Images, plan.Texts = MultimodalRAG, images, texts
	case hasImages && imageSupport:
		plan.Mode, plan.Images = MultimodalOnly, images
	case hasTexts:
		plan.Mode, plan.Texts = RAGOnly, texts
	default:
		plan.Mode = TextOnly
	}
	return plan
}
