// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.TextEmbedder,
// ai.ImageEmbedder, ai.FilterExtractor and ai.Provider for use in unit tests.
// The mocks allow tests to run without model servers and enable controlled,
// deterministic behavior.
//
// # Usage in Tests
//
//	provider := mock.NewMockProvider(dims)
//	vectors, err := provider.ClipText().EmbedTexts(ctx, []string{"red dress"})
//
//	// Custom behavior injection
//	provider.GetImage().WithEmbedImagesFunc(func(ctx context.Context, images []ai.Image) ([][]float32, error) {
//	    return nil, errors.New("encoder down")
//	})
//
//	// Check call counts
//	count := provider.GetSemantic().CallCount()
//
// # Default Behavior
//
//   - MockTextEmbedder: unit vectors derived from a hash of each text
//   - MockImageEmbedder: unit vectors derived from a hash of each image path
//   - MockFilterExtractor: no filters, CleanQuery and StyleQuery set to the text
//
// Empty input returns empty output and is not counted as a call.
package mock
