package vision

import "fmt"

// SystemPrompt builds the instruction string sent with every tagging call.
// The wording follows the stock-contributor prompt the tagger has always
// used; tagCount is a target the model is asked for, not a validated
// contract. For batched calls the model is told to answer with one JSON
// object per image, in submission order.
func SystemPrompt(tagCount, imageCount int) string {
	base := fmt.Sprintf(
		"You are a popular AdobeStock contributor. Analyze the image and provide a title and exactly %d tags that suit Adobe Stock. Format your response as a JSON object with 'title' and 'tags' keys. The 'tags' should be an array of strings.",
		tagCount)
	if imageCount <= 1 {
		return base
	}
	return fmt.Sprintf(
		"You are a popular AdobeStock contributor. For each of the %d images, provide a title and exactly %d tags that suit Adobe Stock. Format your response as a JSON array with one object per image, in order. Each object must have 'title' and 'tags' keys; 'tags' is an array of strings.",
		imageCount, tagCount)
}
