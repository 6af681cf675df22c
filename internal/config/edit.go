package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

const repositoriesKey = "repositories"

// AddRepository appends a repository to the configuration file at path,
// creating the file when it does not exist. The rest of the document,
// comments included, is written back unchanged. The alias defaults to the
// repository name.
func AddRepository(path, rawURL, alias string) (model.Repository, error) {
	repo, err := model.ParseRepositoryURL(rawURL, alias)
	if err != nil {
		return model.Repository{}, err
	}

	doc, err := readDocument(path)
	if err != nil {
		return model.Repository{}, err
	}
	seq, err := repositoriesNode(doc, true)
	if err != nil {
		return model.Repository{}, err
	}

	for _, item := range seq.Content {
		entry := decodeEntry(item)
		if strings.EqualFold(entry.Name, repo.Name) {
			return model.Repository{}, fmt.Errorf("%w: alias %q", ErrDuplicateRepository, repo.Name)
		}
		if existing, err := model.ParseRepositoryURL(entry.URL, entry.Name); err == nil && existing.Key == repo.Key {
			return model.Repository{}, fmt.Errorf("%w: %s as %q", ErrDuplicateRepository, repo.FullName(), existing.Name)
		}
	}

	seq.Content = append(seq.Content, &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
		Content: []*yaml.Node{
			scalar("name"), scalar(repo.Name),
			scalar("url"), scalar(repo.URL),
		},
	})

	if err := writeDocument(path, doc); err != nil {
		return model.Repository{}, err
	}
	return repo, nil
}

// RemoveRepository deletes the entry whose alias, URL, or owner/repo matches
// identifier and returns it. ErrRepositoryNotConfigured is returned when
// nothing matches.
func RemoveRepository(path, identifier string) (Repository, error) {
	doc, err := readDocument(path)
	if err != nil {
		return Repository{}, err
	}
	seq, err := repositoriesNode(doc, false)
	if err != nil {
		return Repository{}, err
	}

	var target model.RepositoryKey
	if strings.Contains(identifier, "/") {
		if parsed, err := model.ParseRepositoryURL(identifier, ""); err == nil {
			target = parsed.Key
		}
	}

	if seq != nil {
		for i, item := range seq.Content {
			entry := decodeEntry(item)
			match := strings.EqualFold(entry.Name, identifier)
			if !match && target != "" {
				if parsed, err := model.ParseRepositoryURL(entry.URL, entry.Name); err == nil {
					match = parsed.Key == target
				}
			}
			if !match {
				continue
			}

			seq.Content = append(seq.Content[:i], seq.Content[i+1:]...)
			if err := writeDocument(path, doc); err != nil {
				return Repository{}, err
			}
			return entry, nil
		}
	}
	return Repository{}, fmt.Errorf("%w: %s", ErrRepositoryNotConfigured, identifier)
}

func readDocument(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	if doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing %s: top level must be a mapping", path)
	}
	return &doc, nil
}

// repositoriesNode returns the repositories sequence, adding an empty one
// when create is set. It returns nil without error when the key is absent
// and create is not set.
func repositoriesNode(doc *yaml.Node, create bool) (*yaml.Node, error) {
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != repositoriesKey {
			continue
		}
		value := root.Content[i+1]
		switch {
		case value.Kind == yaml.SequenceNode:
			return value, nil
		case value.Kind == yaml.ScalarNode && value.Tag == "!!null":
			value.Kind, value.Tag, value.Value = yaml.SequenceNode, "!!seq", ""
			value.Style = 0
			return value, nil
		default:
			return nil, fmt.Errorf("%s must be a list", repositoriesKey)
		}
	}
	if !create {
		return nil, nil
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	root.Content = append(root.Content, scalar(repositoriesKey), seq)
	return seq, nil
}

func decodeEntry(node *yaml.Node) Repository {
	var entry Repository
	_ = node.Decode(&entry)
	return entry
}

func writeDocument(path string, doc *yaml.Node) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}
