package graph

import (
	"errors"
	"slices"
	"sync"
)

// ParMap runs every input through fn in parallel, returning the results in input order or an error if any occurred.
func ParMap[T, U any](inputs []T, fn func(T) (U, error)) ([]U, error) {
	results := make([]U, len(inputs))
	errs := make([]error, len(inputs))
	wg := &sync.WaitGroup{}
	wg.Add(len(inputs))
	for i, input := range inputs {
		go func(i int, input T) {
			defer wg.Done()
			result, err := fn(input)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = result
		}(i, input)
	}
	wg.Wait()
	errs = slices.DeleteFunc(errs, func(err error) bool { return err == nil })
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return results, nil
}
