package domain

import "strings"

// languageByExtension 是扩展名到语言标签的固定映射表。
// 未收录的扩展名统一映射为 "plaintext"，这是默认行为而不是错误。
var languageByExtension = map[string]string{
	"js":   "javascript",
	"jsx":  "javascript",
	"ts":   "typescript",
	"tsx":  "typescript",
	"html": "html",
	"htm":  "html",
	"css":  "css",
	"scss": "scss",
	"sass": "sass",
	"less": "less",
	"py":   "python",
	"cpp":  "cpp",
	"c":    "c",
	"java": "java",
	"json": "json",
	"xml":  "xml",
	"md":   "markdown",
	"yml":  "yaml",
	"yaml": "yaml",
	"sql":  "sql",
	"php":  "php",
	"rb":   "ruby",
	"go":   "go",
	"rs":   "rust",
	"sh":   "shell",
	"bash": "shell",
}

// LanguageForFilename 根据文件名的扩展名推导语言标签。
func LanguageForFilename(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return "plaintext"
	}
	ext := strings.ToLower(name[idx+1:])
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return "plaintext"
}

// defaultTemplates 是新建文件时按语言填充的起始内容。
var defaultTemplates = map[string]string{
	"html": `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>My Project</title>
</head>
<body>
  <h1>Welcome to Inkwell!</h1>
  <p>Start editing this file to see changes in real-time.</p>
</body>
</html>`,
	"javascript": `// Welcome to Inkwell!
// This is a collaborative code editor where you can write and run code together.

console.log("Hello, Inkwell!");
`,
	"python": `# Welcome to Inkwell!
# This is a collaborative code editor where you can write and run code together.

print("Hello, Inkwell!")
`,
	"css": `body {
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
  line-height: 1.6;
  margin: 0;
}
`,
	"cpp": `#include <iostream>

int main() {
    std::cout << "Hello, Inkwell!" << std::endl;
    return 0;
}
`,
}

// TemplateForLanguage 返回指定语言的起始模板，未知语言返回空内容。
// 纯函数，常数时间。
func TemplateForLanguage(language string) string {
	return defaultTemplates[strings.ToLower(language)]
}
