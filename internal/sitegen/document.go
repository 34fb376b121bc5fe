package sitegen

import "strings"

// document wraps rendered sections in the full HTML page shell.
func document(pageName, projectName string, sections []string) string {
	title := projectName
	if pageName != "" && pageName != projectName {
		if projectName != "" {
			title = pageName + " | " + projectName
		} else {
			title = pageName
		}
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n")
	b.WriteString("<html lang=\"en\">\n<head>\n")
	b.WriteString("  <meta charset=\"UTF-8\">\n")
	b.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	b.WriteString("  <title>" + text(title) + "</title>\n")
	b.WriteString("  <link rel=\"icon\" href=\"/favicon.ico\">\n")
	b.WriteString("  <link rel=\"stylesheet\" href=\"css/main.css\">\n")
	b.WriteString("  <link rel=\"stylesheet\" href=\"css/components.css\">\n")
	b.WriteString("</head>\n<body>\n")
	for _, section := range sections {
		if section == "" {
			continue
		}
		b.WriteString(section)
		b.WriteString("\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}
