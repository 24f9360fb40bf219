// Mock-generation prompts and prompt-budget helpers.
//
// USAGE:
//   - BuildMockPrompt() assembles the generation prompt for one route
//   - TruncateForPrompt() caps request-body quoting by token count
package external

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// MockSystemPrompt sets the persona for mock data generation.
const MockSystemPrompt = `You are a seasoned backend developer with rich experience in RESTful API design and implementation.`

// commonRules constrain the model to machine-consumable output.
const commonRules = `IMPORTANT：1.Generate JSON data only without any explanation, comments or other text;
2. the JSON object should be with the following format: { "code": 0, "message": "success", "data": {} };
3. Do not use ` + "```json" + ` to wrap the output, just output the JSON string;
4. If you need to generate text fields, please use Chinese characters;
5. when generate a unique ID, please use the @id placeholder to represent it, such as id, user_id, order_id, product_id, etc.
6. If the request contains pagination parameters like 'pageSize' or 'limit', generate the corresponding number of objects, but no more than 10 objects;
7. If a object can have a image, add a image field to the object;`

// imageRules route image-ish fields through expansion placeholders.
const imageRules = `8. If a object can have a image, add a image field to the object;
9. When generating a image url, please use a placeholder: @image;
10. When generating a image url of goods/product, please use a placeholder: @goodsImage;
11. when generate a avatar url of user, please use a placeholder: @avatar;
12. when generate a image of a post, please use a placeholder: @postImage;`

// bodyMethods are the HTTP methods whose request bodies are quoted in the
// prompt.
var bodyMethods = map[string]bool{"POST": true, "PUT": true}

// BuildMockPrompt assembles the generation prompt from the request shape and
// an optional imported response schema.
func BuildMockPrompt(method, path, requestBody, responseSchema string) string {
	var b strings.Builder
	b.WriteString("Please generate JSON data with camelCase style based on the following request information:\n")
	fmt.Fprintf(&b, "Request method: %s\n", method)
	fmt.Fprintf(&b, "Request path: %s", path)
	if bodyMethods[strings.ToUpper(method)] && requestBody != "" {
		fmt.Fprintf(&b, "\nRequest parameters: %s", requestBody)
	}
	if responseSchema != "" {
		fmt.Fprintf(&b, "\nResponse data structure definition: %s", responseSchema)
	}
	b.WriteString("\n")
	b.WriteString(commonRules)
	b.WriteString("\n")
	b.WriteString(imageRules)
	return b.String()
}

var (
	promptEncoding     *tiktoken.Tiktoken
	promptEncodingOnce sync.Once
)

// TruncateForPrompt caps s at budget tokens so one oversized request body
// cannot blow the model's context window. Falls back to a bytes/4 estimate
// when the tokenizer is unavailable (it downloads its BPE ranks lazily).
func TruncateForPrompt(s string, budget int) string {
	if budget <= 0 || s == "" {
		return s
	}
	promptEncodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			promptEncoding = enc
		}
	})
	if promptEncoding == nil {
		if len(s) > budget*4 {
			return s[:budget*4]
		}
		return s
	}
	tokens := promptEncoding.Encode(s, nil, nil)
	if len(tokens) <= budget {
		return s
	}
	return promptEncoding.Decode(tokens[:budget])
}
