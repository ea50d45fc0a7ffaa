package review

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// The persisted wire payload for a batch of comments is an indexed flat key
// scheme, required for compatibility with the multipart submission format:
//
//	Comments[i].pageTitleForTL
//	Comments[i].comment
//	Comments[i].fields[j].section|inputKey|label|id|value
//
// The fields[j].id key carries the row id of fields inside repeated rows.

// FlattenComments encodes a batch of page comments into the flat key scheme.
func FlattenComments(comments []PageComment) url.Values {
	values := url.Values{}
	for i, comment := range comments {
		prefix := fmt.Sprintf("Comments[%d]", i)
		values.Set(prefix+".pageTitleForTL", comment.PageTitle)
		values.Set(prefix+".comment", comment.Text)
		for j, field := range comment.Fields {
			fieldPrefix := fmt.Sprintf("%s.fields[%d]", prefix, j)
			values.Set(fieldPrefix+".section", field.Section)
			values.Set(fieldPrefix+".inputKey", field.InputKey)
			values.Set(fieldPrefix+".label", field.Label)
			values.Set(fieldPrefix+".id", field.RowID)
			values.Set(fieldPrefix+".value", field.Value)
		}
	}
	return values
}

// ParseComments reconstructs the comment batch from a flat payload. Indexes
// are read densely from zero; the first missing comment index terminates the
// scan, the first missing field index terminates that comment's field list.
func ParseComments(values url.Values) []PageComment {
	var comments []PageComment
	for i := 0; ; i++ {
		prefix := fmt.Sprintf("Comments[%d]", i)
		if !values.Has(prefix+".pageTitleForTL") && !values.Has(prefix+".comment") {
			break
		}
		comment := PageComment{
			PageTitle: values.Get(prefix + ".pageTitleForTL"),
			Text:      values.Get(prefix + ".comment"),
		}
		for j := 0; ; j++ {
			fieldPrefix := fmt.Sprintf("%s.fields[%d]", prefix, j)
			if !values.Has(fieldPrefix + ".inputKey") {
				break
			}
			comment.Fields = append(comment.Fields, FieldRef{
				Section:  values.Get(fieldPrefix + ".section"),
				InputKey: values.Get(fieldPrefix + ".inputKey"),
				Label:    values.Get(fieldPrefix + ".label"),
				RowID:    values.Get(fieldPrefix + ".id"),
				Value:    values.Get(fieldPrefix + ".value"),
			})
		}
		comments = append(comments, comment)
	}
	return comments
}

// CommentCount reports how many comment indexes a flat payload carries
// without parsing field lists, used when sizing multipart writers.
func CommentCount(values url.Values) int {
	count := 0
	for key := range values {
		if !strings.HasPrefix(key, "Comments[") {
			continue
		}
		rest := key[len("Comments["):]
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			continue
		}
		index, err := strconv.Atoi(rest[:end])
		if err != nil {
			continue
		}
		if index+1 > count {
			count = index + 1
		}
	}
	return count
}
