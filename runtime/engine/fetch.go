package engine

import (
	"context"
	"reflect"
)

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func listOf[T any](v any) []T {
	l, _ := v.([]T)
	return l
}

// FetchOne returns the first row of src as a T, or ErrNoRows. An Expr
// without a limit is limited to one row.
func FetchOne[T any](ctx context.Context, e *Engine, src Source, opts ...CallOption) (T, error) {
	var zero T
	v, err := e.fetch(ctx, CallDescriptor{Kind: CallOne, Source: src, Types: []reflect.Type{typeOf[T]()}}, opts)
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// FetchList returns every row of src.
func FetchList[T any](ctx context.Context, e *Engine, src Source, opts ...CallOption) ([]T, error) {
	v, err := e.fetch(ctx, CallDescriptor{Kind: CallList, Source: src, Types: []reflect.Type{typeOf[T]()}}, opts)
	if err != nil {
		return nil, err
	}
	return listOf[T](v), nil
}

// Tuple2 holds the lists of a 2-way multi-result fetch.
type Tuple2[T1, T2 any] struct {
	Item1 []T1
	Item2 []T2
}

// FetchTuple2 reads 2 result sets: the sets of a multi-statement Script
// or one query per Expr of a Batch.
func FetchTuple2[T1, T2 any](ctx context.Context, e *Engine, src Source, opts ...CallOption) (Tuple2[T1, T2], error) {
	v, err := e.fetch(ctx, CallDescriptor{Kind: CallTuple2, Source: src, Types: []reflect.Type{typeOf[T1](), typeOf[T2]()}}, opts)
	if err != nil {
		return Tuple2[T1, T2]{}, err
	}
	lists := v.([]any)
	return Tuple2[T1, T2]{
		Item1: listOf[T1](lists[0]),
		Item2: listOf[T2](lists[1]),
	}, nil
}

// Tuple3 holds the lists of a 3-way multi-result fetch.
type Tuple3[T1, T2, T3 any] struct {
	Item1 []T1
	Item2 []T2
	Item3 []T3
}

// FetchTuple3 reads 3 result sets.
func FetchTuple3[T1, T2, T3 any](ctx context.Context, e *Engine, src Source, opts ...CallOption) (Tuple3[T1, T2, T3], error) {
	v, err := e.fetch(ctx, CallDescriptor{Kind: CallTuple3, Source: src, Types: []reflect.Type{typeOf[T1](), typeOf[T2](), typeOf[T3]()}}, opts)
	if err != nil {
		return Tuple3[T1, T2, T3]{}, err
	}
	lists := v.([]any)
	return Tuple3[T1, T2, T3]{
		Item1: listOf[T1](lists[0]),
		Item2: listOf[T2](lists[1]),
		Item3: listOf[T3](lists[2]),
	}, nil
}

// Tuple4 holds the lists of a 4-way multi-result fetch.
type Tuple4[T1, T2, T3, T4 any] struct {
	Item1 []T1
	Item2 []T2
	Item3 []T3
	Item4 []T4
}

// FetchTuple4 reads 4 result sets.
func FetchTuple4[T1, T2, T3, T4 any](ctx context.Context, e *Engine, src Source, opts ...CallOption) (Tuple4[T1, T2, T3, T4], error) {
	v, err := e.fetch(ctx, CallDescriptor{Kind: CallTuple4, Source: src, Types: []reflect.Type{typeOf[T1](), typeOf[T2](), typeOf[T3](), typeOf[T4]()}}, opts)
	if err != nil {
		return Tuple4[T1, T2, T3, T4]{}, err
	}
	lists := v.([]any)
	return Tuple4[T1, T2, T3, T4]{
		Item1: listOf[T1](lists[0]),
		Item2: listOf[T2](lists[1]),
		Item3: listOf[T3](lists[2]),
		Item4: listOf[T4](lists[3]),
	}, nil
}

// Tuple5 holds the lists of a 5-way multi-result fetch.
type Tuple5[T1, T2, T3, T4, T5 any] struct {
	Item1 []T1
	Item2 []T2
	Item3 []T3
	Item4 []T4
	Item5 []T5
}

// FetchTuple5 reads 5 result sets.
func FetchTuple5[T1, T2, T3, T4, T5 any](ctx context.Context, e *Engine, src Source, opts ...CallOption) (Tuple5[T1, T2, T3, T4, T5], error) {
	v, err := e.fetch(ctx, CallDescriptor{Kind: CallTuple5, Source: src, Types: []reflect.Type{typeOf[T1](), typeOf[T2](), typeOf[T3](), typeOf[T4](), typeOf[T5]()}}, opts)
	if err != nil {
		return Tuple5[T1, T2, T3, T4, T5]{}, err
	}
	lists := v.([]any)
	return Tuple5[T1, T2, T3, T4, T5]{
		Item1: listOf[T1](lists[0]),
		Item2: listOf[T2](lists[1]),
		Item3: listOf[T3](lists[2]),
		Item4: listOf[T4](lists[3]),
		Item5: listOf[T5](lists[4]),
	}, nil
}

// Tuple6 holds the lists of a 6-way multi-result fetch.
type Tuple6[T1, T2, T3, T4, T5, T6 any] struct {
	Item1 []T1
	Item2 []T2
	Item3 []T3
	Item4 []T4
	Item5 []T5
	Item6 []T6
}

// FetchTuple6 reads 6 result sets.
func FetchTuple6[T1, T2, T3, T4, T5, T6 any](ctx context.Context, e *Engine, src Source, opts ...CallOption) (Tuple6[T1, T2, T3, T4, T5, T6], error) {
	v, err := e.fetch(ctx, CallDescriptor{Kind: CallTuple6, Source: src, Types: []reflect.Type{typeOf[T1](), typeOf[T2](), typeOf[T3](), typeOf[T4](), typeOf[T5](), typeOf[T6]()}}, opts)
	if err != nil {
		return Tuple6[T1, T2, T3, T4, T5, T6]{}, err
	}
	lists := v.([]any)
	return Tuple6[T1, T2, T3, T4, T5, T6]{
		Item1: listOf[T1](lists[0]),
		Item2: listOf[T2](lists[1]),
		Item3: listOf[T3](lists[2]),
		Item4: listOf[T4](lists[3]),
		Item5: listOf[T5](lists[4]),
		Item6: listOf[T6](lists[5]),
	}, nil
}

// Tuple7 holds the lists of a 7-way multi-result fetch.
type Tuple7[T1, T2, T3, T4, T5, T6, T7 any] struct {
	Item1 []T1
	Item2 []T2
	Item3 []T3
	Item4 []T4
	Item5 []T5
	Item6 []T6
	Item7 []T7
}

// FetchTuple7 reads 7 result sets.
func FetchTuple7[T1, T2, T3, T4, T5, T6, T7 any](ctx context.Context, e *Engine, src Source, opts ...CallOption) (Tuple7[T1, T2, T3, T4, T5, T6, T7], error) {
	v, err := e.fetch(ctx, CallDescriptor{Kind: CallTuple7, Source: src, Types: []reflect.Type{typeOf[T1](), typeOf[T2](), typeOf[T3](), typeOf[T4](), typeOf[T5](), typeOf[T6](), typeOf[T7]()}}, opts)
	if err != nil {
		return Tuple7[T1, T2, T3, T4, T5, T6, T7]{}, err
	}
	lists := v.([]any)
	return Tuple7[T1, T2, T3, T4, T5, T6, T7]{
		Item1: listOf[T1](lists[0]),
		Item2: listOf[T2](lists[1]),
		Item3: listOf[T3](lists[2]),
		Item4: listOf[T4](lists[3]),
		Item5: listOf[T5](lists[4]),
		Item6: listOf[T6](lists[5]),
		Item7: listOf[T7](lists[6]),
	}, nil
}
